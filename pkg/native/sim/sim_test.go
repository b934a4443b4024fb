package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mufat/mufat/pkg/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverRegistered(t *testing.T) {
	assert.Contains(t, native.Drivers(), DriverName)

	core, display, err := native.Open(DriverName, native.Options{UserDataDir: "/tmp/ud"})
	require.NoError(t, err)
	assert.NotNil(t, display)
	assert.Equal(t, "/tmp/ud", core.UserDataFolder())

	_, _, err = native.Open("missing", native.Options{})
	require.Error(t, err)
}

func TestCore_AnalysisProgressSteps(t *testing.T) {
	core := New(DefaultConfig())

	status, err := core.StartAnalysis()
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	var seen []float64

	for i := 0; i < 4; i++ {
		p, err := core.AnalysisProgress()
		require.NoError(t, err)
		seen = append(seen, p)
	}

	assert.Equal(t, []float64{0.25, 0.5, 0.75, 1}, seen)
}

func TestCore_FailAndStall(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fail = map[string]bool{"StartAnalysis": true}
	cfg.Stall = map[string]bool{"file": true}
	core := New(cfg)

	status, err := core.StartAnalysis()
	require.NoError(t, err)
	assert.Negative(t, status)
	assert.Contains(t, core.LastError(), "StartAnalysis")

	_, err = core.StartRenderToFile("/tmp/out.mp4", nil, 0, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		p, _ := core.RenderToFileProgress()
		assert.LessOrEqual(t, p, 0.5)
	}
}

func TestCore_AddSourceRequiresLoadedFile(t *testing.T) {
	core := New(DefaultConfig())
	require.NoError(t, core.Init(native.InitDefault))

	src, err := core.CreateSource(native.SourceImage)
	require.NoError(t, err)

	ok, err := src.LoadFile("/does/not/exist.jpg", native.LoadVerifySupport)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = core.AddSource(native.SourceImage, src, native.LoadVerifySupport)
	require.NoError(t, err)
	assert.False(t, ok)

	path := filepath.Join(t.TempDir(), "pic.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpg"), 0o644))

	ok, err = src.LoadFile(path, native.LoadVerifySupport)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = core.AddSource(native.SourceImage, src, native.LoadVerifySupport)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, core.Sources(), 1)
}

func TestCore_SourceViews(t *testing.T) {
	core := New(DefaultConfig())
	require.NoError(t, core.Init(native.InitDefault))

	path := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(path, []byte("mov"), 0o644))

	video, err := core.CreateSource(native.SourceVideo)
	require.NoError(t, err)

	_, err = video.(native.VideoInspector).VideoInfo()
	require.Error(t, err)

	ok, err := video.LoadFile(path, native.LoadVerifySupport)
	require.NoError(t, err)
	require.True(t, ok)

	info, err := video.(native.VideoInspector).VideoInfo()
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 9, info.AspectRatioY)

	op, err := core.CreateSource(native.SourceOperator)
	require.NoError(t, err)
	require.NoError(t, op.(native.Operator).SetParam("ANCHOR_TIME", 1.5))
	require.Error(t, video.(native.Operator).SetParam("ANCHOR_TIME", 1.5))

	v, found := op.(*Source).Param("ANCHOR_TIME")
	assert.True(t, found)
	assert.InDelta(t, 1.5, v, 0)

	id := video.(native.Identified).UniqueID()
	assert.NotEqual(t, id, op.(native.Identified).UniqueID())

	ok, err = core.AddSource(native.SourceVideo, video, native.LoadVerifySupport)
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := core.SourceIDs(native.SourceVideo)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestCore_ProductionResetOnInit(t *testing.T) {
	core := New(DefaultConfig())
	require.NoError(t, core.Init(native.InitDefault))

	require.NoError(t, core.SetTitleString("Holiday"))
	require.NoError(t, core.SetOverlayOpacity(0.5))
	require.Error(t, core.SetOverlayOpacity(1.5))
	require.Error(t, core.SetOverlayPlacement(native.Rect{Left: 0.5, Right: 0.1}))
	require.Error(t, core.ConfigRenderTL2File("/tmp/timeline.txt"))
	require.NoError(t, core.ConfigRenderTL2File("/tmp/timeline.bin"))

	prod := core.Production()
	assert.Equal(t, "Holiday", prod.Title)
	assert.InDelta(t, 0.5, prod.LogoOpacity, 0)
	assert.Nil(t, prod.LogoPlacement)
	assert.Equal(t, "/tmp/timeline.bin", prod.TimelineDump)

	require.NoError(t, core.Init(native.InitDefault))
	assert.Equal(t, Production{}, core.Production())
}

func TestCaptions_XMLRoundTrip(t *testing.T) {
	src := newSource(native.SourceVideo, false, 0.25)
	require.NoError(t, src.SetCaptionHighlight("hello", 1.5, 3, &native.TextFormat{LogFont: "Arial", Color: 255, Width: 0.5}))
	_, err := src.Captions().Add("world")
	require.NoError(t, err)

	data, err := src.Captions().ToXML()
	require.NoError(t, err)

	other := &Captions{}
	require.NoError(t, other.FromXML(data))
	require.Equal(t, 2, other.Len())

	first, err := other.At(0)
	require.NoError(t, err)
	assert.Equal(t, "hello", first.Text)
	assert.Equal(t, 1.5, first.Start)
	assert.Equal(t, "Arial", first.Format.LogFont)

	require.NoError(t, other.Remove(0))
	assert.Equal(t, 1, other.Len())
	require.Error(t, other.FromXML("<captions>"))
}

func TestWindow_CloseRunsCallbacksOnce(t *testing.T) {
	display := NewDisplay()

	win, err := display.NewWindow("preview", 320, 240)
	require.NoError(t, err)

	var closes int
	win.OnClose(func() { closes++ })

	done := make(chan struct{})

	go func() {
		_ = win.Run()
		close(done)
	}()

	win.Close()
	win.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.Equal(t, 1, closes)
}

func TestWindow_AutoClose(t *testing.T) {
	display := &Display{AutoClose: 10 * time.Millisecond}

	win, err := display.NewWindow("preview", 320, 240)
	require.NoError(t, err)

	require.NoError(t, win.Run())
}
