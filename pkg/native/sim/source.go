package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/mufat/mufat/pkg/native"
)

// Source is a simulated media source implementing every optional view.
type Source struct {
	mu          sync.Mutex
	id          string
	kind        native.SourceType
	checkExists bool
	loaded      bool
	path        string
	minDuration float64
	clip        native.Span
	highlights  []native.Span
	exclusions  []native.Span
	rects       int
	captions    *Captions
	render      operation
	step        float64
	video       native.VideoInfo
	params      map[string]any
}

var (
	_ native.Source             = (*Source)(nil)
	_ native.Clipper            = (*Source)(nil)
	_ native.Highlighter        = (*Source)(nil)
	_ native.Excluder           = (*Source)(nil)
	_ native.TargetRects        = (*Source)(nil)
	_ native.CaptionHighlighter = (*Source)(nil)
	_ native.DescriptorVerifier = (*Source)(nil)
	_ native.Captioned          = (*Source)(nil)
	_ native.Previewable        = (*Source)(nil)
	_ native.VideoInspector     = (*Source)(nil)
	_ native.Operator           = (*Source)(nil)
	_ native.Identified         = (*Source)(nil)
)

func newSource(kind native.SourceType, checkExists bool, step float64) *Source {
	return &Source{kind: kind, checkExists: checkExists, captions: &Captions{}, step: step}
}

// Path returns the loaded file path or text content.
func (s *Source) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.path
}

// Clip returns the configured clip range.
func (s *Source) Clip() native.Span {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clip
}

func (s *Source) Type() native.SourceType {
	return s.kind
}

func (s *Source) LoadFile(path string, _ native.LoadFlags) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkExists {
		if _, err := os.Stat(path); err != nil {
			return false, nil
		}
	}

	s.path = path
	s.loaded = true

	return true, nil
}

func (s *Source) Load(content string, _ native.LoadFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.path = content
	s.loaded = true

	return nil
}

func (s *Source) SetMinDuration(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seconds < 0 {
		return fmt.Errorf("negative duration %v", seconds)
	}

	s.minDuration = seconds

	return nil
}

func (s *Source) SetClip(start, stop float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop < start {
		return fmt.Errorf("clip stop %v before start %v", stop, start)
	}

	s.clip = native.Span{Start: start, Stop: stop}

	return nil
}

func (s *Source) SetHighlight(start, stop float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop < start {
		return fmt.Errorf("highlight stop %v before start %v", stop, start)
	}

	s.highlights = append(s.highlights, native.Span{Start: start, Stop: stop})

	return nil
}

func (s *Source) HighlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.highlights)
}

func (s *Source) Highlight(i int) (native.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.highlights) {
		return native.Span{}, fmt.Errorf("highlight index %d out of range", i)
	}

	return s.highlights[i], nil
}

func (s *Source) ClearHighlights() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.highlights = nil

	return nil
}

func (s *Source) SaveHighlights(path string) error {
	s.mu.Lock()
	data, err := json.Marshal(s.highlights)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func (s *Source) LoadHighlights(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var spans []native.Span
	if err := json.Unmarshal(data, &spans); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.highlights = append(s.highlights, spans...)

	return nil
}

func (s *Source) SetExclusion(start, stop float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stop < start {
		return fmt.Errorf("exclusion stop %v before start %v", stop, start)
	}

	s.exclusions = append(s.exclusions, native.Span{Start: start, Stop: stop})

	return nil
}

func (s *Source) Exclusions() ([]native.Span, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]native.Span(nil), s.exclusions...), nil
}

func (s *Source) AddTargetRect(x1, x2, y1, y2 float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if x2 < x1 || y2 < y1 {
		return errors.New("target rect has negative extent")
	}

	s.rects++

	return nil
}

func (s *Source) TargetRectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rects
}

func (s *Source) SetCaptionHighlight(text string, start, stop float64, format *native.TextFormat) error {
	if err := s.SetHighlight(start, stop); err != nil {
		return err
	}

	idx, err := s.captions.Add(text)
	if err != nil {
		return err
	}

	s.captions.mu.Lock()
	defer s.captions.mu.Unlock()

	s.captions.items[idx].Start = start
	s.captions.items[idx].Stop = stop

	if format != nil {
		s.captions.items[idx].Format = *format
	}

	return nil
}

func (s *Source) VerifyUserDescriptors() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, span := range append(append([]native.Span(nil), s.highlights...), s.exclusions...) {
		if span.Stop < span.Start {
			return false, nil
		}
	}

	return true, nil
}

func (s *Source) Captions() native.CaptionCollection {
	return s.captions
}

func (s *Source) SetupRender(win native.Window, _, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if win == nil || !s.loaded {
		return -1, nil
	}

	return 0, nil
}

func (s *Source) StartRender() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.render = operation{running: true}

	return nil
}

func (s *Source) RenderProgress() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.render.running {
		return -1, nil
	}

	s.render.progress += s.step
	if s.render.progress >= 1 {
		s.render = operation{progress: 1}

		return 1, nil
	}

	return s.render.progress, nil
}

func (s *Source) StopRender() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.render.running = false

	return nil
}

func (s *Source) ShutdownRender() error {
	return nil
}

func (s *Source) UniqueID() string {
	return s.id
}

func (s *Source) VideoInfo() (native.VideoInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind != native.SourceVideo || !s.loaded {
		return native.VideoInfo{}, fmt.Errorf("no video stream in %s source", s.kind)
	}

	return s.video, nil
}

func (s *Source) SetParam(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind != native.SourceOperator {
		return fmt.Errorf("%s source has no operator parameters", s.kind)
	}

	if s.params == nil {
		s.params = make(map[string]any)
	}

	s.params[name] = value

	return nil
}

// Param returns an operator parameter set with SetParam.
func (s *Source) Param(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.params[name]

	return v, ok
}
