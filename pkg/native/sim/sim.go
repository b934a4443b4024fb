// Package sim is an in-memory native runtime for dry runs and tests. Long
// operations advance by a fixed step on every progress call.
package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mufat/mufat/pkg/native"
	"github.com/sirupsen/logrus"
)

// DriverName is the registry name of the simulated runtime.
const DriverName = "sim"

func init() {
	native.Register(DriverName, driver{})
}

type driver struct{}

func (driver) Open(opts native.Options) (native.Core, native.Display, error) {
	cfg := DefaultConfig()
	cfg.UserDataDir = opts.UserDataDir
	cfg.Logger = opts.Logger

	return New(cfg), NewDisplay(), nil
}

// Config tunes the simulated runtime.
type Config struct {
	// Step is added to an operation's progress on every progress call.
	Step float64
	// Fail makes the named method report failure, e.g. "StartAnalysis"
	// or "MakeProgress".
	Fail map[string]bool
	// Stall pins the progress of the named operation ("analysis",
	// "make", "file", "window") at StallAt.
	Stall   map[string]bool
	StallAt float64
	Styles  []string
	Build   int
	// Duration is reported by TimelineDuration once a timeline was made.
	Duration float64
	// Video is the stream info of every loaded video source.
	Video            native.VideoInfo
	UserDataDir      string
	CommonDataDir    string
	CheckMediaExists bool
	Logger           logrus.FieldLogger
}

// DefaultConfig returns a runtime where every operation succeeds in four
// polls.
func DefaultConfig() Config {
	return Config{
		Step:             0.25,
		StallAt:          0.5,
		Styles:           []string{"S00000_Classic", "S00001_Reflections", "S00002_Scrapbook"},
		Build:            1,
		CheckMediaExists: true,
		Video: native.VideoInfo{
			Width: 1920, Height: 1080,
			AspectRatio: native.AspectRatio16x9, AspectRatioX: 16, AspectRatioY: 9,
		},
	}
}

type operation struct {
	running  bool
	progress float64
}

// Core is the simulated runtime.
type Core struct {
	cfg Config
	log logrus.FieldLogger

	mu          sync.Mutex
	initialized bool
	sources     []native.Source
	ops         map[string]*operation
	activeStyle string
	aspect      native.AspectRatio
	musicLevel  float64
	syncLevel   float64
	descriptors string
	madeFor     float64
	lastError   string
	calls       []string
	nextID      int
	production  Production
}

var _ native.Core = (*Core)(nil)

// New creates a simulated runtime.
func New(cfg Config) *Core {
	if cfg.Step <= 0 {
		cfg.Step = 0.25
	}

	if cfg.UserDataDir == "" {
		cfg.UserDataDir = filepath.Join(os.TempDir(), "mufat-sim", "userdata")
	}

	if cfg.CommonDataDir == "" {
		cfg.CommonDataDir = filepath.Join(os.TempDir(), "mufat-sim", "common")
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}

	c := &Core{
		cfg: cfg,
		log: log.WithField("component", "sim"),
		ops: map[string]*operation{
			"analysis": {},
			"make":     {},
			"file":     {},
			"window":   {},
		},
	}

	if len(cfg.Styles) > 0 {
		c.activeStyle = cfg.Styles[0]
	}

	return c
}

// Calls returns the methods invoked so far, in order.
func (c *Core) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.calls...)
}

// Sources returns the sources added to the production.
func (c *Core) Sources() []native.Source {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]native.Source(nil), c.sources...)
}

func (c *Core) record(name string) bool {
	c.calls = append(c.calls, name)

	if c.cfg.Fail[name] {
		c.lastError = name + " failed (simulated)"

		return false
	}

	return true
}

func (c *Core) Close() error {
	return c.Release()
}

func (c *Core) Init(flags native.InitFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.record("Init") {
		return fmt.Errorf("init: %s", c.lastError)
	}

	c.initialized = true
	c.sources = nil
	c.production = Production{}

	return nil
}

func (c *Core) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Release")
	c.initialized = false

	for _, op := range c.ops {
		op.running = false
	}

	return nil
}

func (c *Core) CreateSource(t native.SourceType) (native.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.record("CreateSource") {
		return nil, fmt.Errorf("create source: %s", c.lastError)
	}

	c.nextID++

	src := newSource(t, c.cfg.CheckMediaExists, c.cfg.Step)
	src.id = fmt.Sprintf("{sim-%s-%04d}", t, c.nextID)
	src.video = c.cfg.Video

	return src, nil
}

func (c *Core) AddSource(t native.SourceType, src native.Source, flags native.LoadFlags) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.record("AddSource") {
		return false, nil
	}

	s, ok := src.(*Source)
	if !ok || !s.loaded {
		c.lastError = "source is not loaded"

		return false, nil
	}

	if t != native.SourceUnknown && t != s.kind {
		c.lastError = fmt.Sprintf("source type mismatch: %s != %s", t, s.kind)

		return false, nil
	}

	c.sources = append(c.sources, src)

	return true, nil
}

func (c *Core) start(name, op string) int {
	if !c.record(name) {
		return -1
	}

	c.ops[op].running = true
	c.ops[op].progress = 0

	return 0
}

func (c *Core) progress(name, op string) float64 {
	if !c.record(name) {
		return -1
	}

	o := c.ops[op]
	if !o.running {
		c.lastError = op + " is not running"

		return -1
	}

	o.progress += c.cfg.Step
	if c.cfg.Stall[op] && o.progress > c.cfg.StallAt {
		o.progress = c.cfg.StallAt
	}

	if o.progress >= 1 {
		o.progress = 1
		o.running = false
	}

	return o.progress
}

func (c *Core) stop(name, op string) {
	c.record(name)
	c.ops[op].running = false
}

func (c *Core) StartAnalysis() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.start("StartAnalysis", "analysis"), nil
}

func (c *Core) AnalysisProgress() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.progress("AnalysisProgress", "analysis"), nil
}

func (c *Core) StopAnalysis() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop("StopAnalysis", "analysis")

	return nil
}

func (c *Core) MakeTimeline(mode native.MakeFlags, duration float64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sources) == 0 {
		c.calls = append(c.calls, "MakeTimeline")
		c.lastError = "no sources added"

		return -1, nil
	}

	status := c.start("MakeTimeline", "make")
	if status < 0 {
		return status, nil
	}

	c.madeFor = duration
	if c.cfg.Duration > 0 {
		c.madeFor = c.cfg.Duration
	}

	if mode&native.MakeThreaded == 0 {
		// Synchronous make completes before returning.
		c.ops["make"].running = false
		c.ops["make"].progress = 1
	}

	return status, nil
}

func (c *Core) MakeProgress() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o := c.ops["make"]; !o.running && o.progress >= 1 {
		c.calls = append(c.calls, "MakeProgress")

		return 1, nil
	}

	return c.progress("MakeProgress", "make"), nil
}

func (c *Core) CancelMake() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop("CancelMake", "make")

	return nil
}

func (c *Core) StartRenderToFile(path string, _ native.Window, _, _ int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path == "" {
		c.calls = append(c.calls, "StartRenderToFile")
		c.lastError = "empty output path"

		return -1, nil
	}

	return c.start("StartRenderToFile", "file"), nil
}

func (c *Core) RenderToFileProgress() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.progress("RenderToFileProgress", "file"), nil
}

func (c *Core) StopRenderToFile() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop("StopRenderToFile", "file")

	return nil
}

func (c *Core) SetupRenderToWindow(_ native.TimelineType, win native.Window, _, _ int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.record("SetupRenderToWindow") {
		return -1, nil
	}

	if win == nil {
		c.lastError = "no window"

		return -1, nil
	}

	return 0, nil
}

func (c *Core) StartRenderToWindow(_ native.TimelineType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.start("StartRenderToWindow", "window") < 0 {
		return fmt.Errorf("start render to window: %s", c.lastError)
	}

	return nil
}

func (c *Core) RenderToWindowProgress(_ native.TimelineType) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.progress("RenderToWindowProgress", "window"), nil
}

func (c *Core) StopRenderToWindow(_ native.TimelineType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop("StopRenderToWindow", "window")

	return nil
}

func (c *Core) ShutdownRenderToWindow(_ native.TimelineType) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("ShutdownRenderToWindow")

	return nil
}

func (c *Core) SetActiveStyle(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.record("SetActiveStyle") {
		return fmt.Errorf("set active style: %s", c.lastError)
	}

	c.activeStyle = name

	return nil
}

func (c *Core) ActiveStyle() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.activeStyle, nil
}

func (c *Core) Styles() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.cfg.Styles...), nil
}

func (c *Core) SetAspectRatio(r native.AspectRatio) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetAspectRatio")
	c.aspect = r

	return nil
}

func (c *Core) SetMusicLevel(level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetMusicLevel")
	c.musicLevel = level

	return nil
}

func (c *Core) SetSyncSoundLevel(level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetSyncSoundLevel")
	c.syncLevel = level

	return nil
}

func (c *Core) SetDescriptorFolder(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetDescriptorFolder")
	c.descriptors = path

	return nil
}

func (c *Core) TimelineDuration(_ native.TimelineType) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("TimelineDuration")

	return c.madeFor, nil
}

func (c *Core) UserDataFolder() string {
	return c.cfg.UserDataDir
}

func (c *Core) CommonDataFolder() string {
	return c.cfg.CommonDataDir
}

func (c *Core) RuntimeBuild() int {
	return c.cfg.Build
}

func (c *Core) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastError
}
