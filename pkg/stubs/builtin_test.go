package stubs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mufat/mufat/pkg/failure"
	"github.com/mufat/mufat/pkg/native"
	"github.com/mufat/mufat/pkg/native/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceStubs(t *testing.T) {
	tests := []struct {
		name  string
		stub  string
		args  func(t *testing.T) Args
		check func(t *testing.T, src *sim.Source)
	}{
		{
			name: "image",
			stub: "AddSourceImage",
			args: func(t *testing.T) Args { return Args{"path": mediaFile(t, "a.jpg")} },
			check: func(t *testing.T, src *sim.Source) {
				assert.Equal(t, native.SourceImage, src.Type())
			},
		},
		{
			name: "image with caption",
			stub: "AddSourceImageWithCaption",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "b.jpg"), "caption": "Happy <birthday> & more"}
			},
			check: func(t *testing.T, src *sim.Source) {
				captions := src.Captions()
				require.Equal(t, 1, captions.Len())

				c, err := captions.At(0)
				require.NoError(t, err)
				assert.Equal(t, "Happy <birthday> & more", c.Text)
			},
		},
		{
			name: "image with magic spots",
			stub: "AddSourceImageWithMagicSpot",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "c.jpg"), "rects": []any{
					[]any{0.1, 0.4, 0.1, 0.4},
					[]any{0.5, 0.9, 0.5, 0.9},
				}}
			},
			check: func(t *testing.T, src *sim.Source) {
				assert.Equal(t, 2, src.TargetRectCount())
			},
		},
		{
			name: "music clip",
			stub: "AddSourceMusicClip",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "song.mp3"), "start": 5, "stop": 35.5}
			},
			check: func(t *testing.T, src *sim.Source) {
				assert.Equal(t, native.Span{Start: 5, Stop: 35.5}, src.Clip())
			},
		},
		{
			name: "text",
			stub: "AddSourceTextWithMinDuration",
			args: func(t *testing.T) Args { return Args{"text": "The End", "duration": 4} },
			check: func(t *testing.T, src *sim.Source) {
				assert.Equal(t, native.SourceText, src.Type())
				assert.Equal(t, "The End", src.Path())
			},
		},
		{
			name: "video without proxy",
			stub: "AddSourceVideoNoProxy",
			args: func(t *testing.T) Args { return Args{"path": mediaFile(t, "v.mp4")} },
			check: func(t *testing.T, src *sim.Source) {
				assert.Equal(t, native.SourceVideo, src.Type())
			},
		},
		{
			name: "video with captioned highlight",
			stub: "AddSourceVideoWithCapHL",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "v.mp4"), "caption": "goal!", "start": 1, "end": 3}
			},
			check: func(t *testing.T, src *sim.Source) {
				assert.Equal(t, 1, src.HighlightCount())
				assert.Equal(t, 1, src.Captions().Len())
			},
		},
		{
			name: "video with magic moments",
			stub: "AddSourceVideoWithMagicMoments",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "v.mp4"), "spans": []any{
					[]any{1, 2},
					[]any{10.5, 12},
				}}
			},
			check: func(t *testing.T, src *sim.Source) {
				require.Equal(t, 2, src.HighlightCount())

				span, err := src.Highlight(1)
				require.NoError(t, err)
				assert.Equal(t, native.Span{Start: 10.5, Stop: 12}, span)
			},
		},
		{
			name: "video with exclusions",
			stub: "AddSourceVideoWithExclusion",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "v.mp4"), "spans": []any{[]any{0, 1}}}
			},
			check: func(t *testing.T, src *sim.Source) {
				ex, err := src.Exclusions()
				require.NoError(t, err)
				assert.Len(t, ex, 1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, sim.DefaultConfig())
			ctx := context.Background()

			require.NoError(t, h.session.Invoke(ctx, "Init", nil))
			require.NoError(t, h.session.Invoke(ctx, tt.stub, tt.args(t)))

			sources := h.core.Sources()
			require.Len(t, sources, 1)

			src, ok := sources[0].(*sim.Source)
			require.True(t, ok)

			tt.check(t, src)
		})
	}
}

func TestSourceStubs_Failures(t *testing.T) {
	tests := []struct {
		name string
		stub string
		args Args
		kind error
	}{
		{name: "missing file", stub: "AddSourceImage", args: Args{"path": "/no/such/file.jpg"}, kind: failure.ErrAssertion},
		{name: "short rect", stub: "AddSourceImageWithMagicSpot", kind: failure.ErrAssertion},
		{name: "reversed clip", stub: "AddSourceMusicClip", kind: failure.ErrNative},
		{name: "odd highlight", stub: "AddSourceVideoWithMagicMoments", kind: failure.ErrAssertion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, sim.DefaultConfig())
			args := tt.args

			switch tt.stub {
			case "AddSourceImageWithMagicSpot":
				args = Args{"path": mediaFile(t, "i.jpg"), "rects": []any{[]any{0.1, 0.2}}}
			case "AddSourceMusicClip":
				args = Args{"path": mediaFile(t, "m.mp3"), "start": 10, "stop": 1}
			case "AddSourceVideoWithMagicMoments":
				args = Args{"path": mediaFile(t, "v.mp4"), "spans": []any{[]any{1}}}
			}

			err := h.session.Invoke(context.Background(), tt.stub, args)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), err.Error())
			assert.Empty(t, h.core.Sources())
			assert.Contains(t, h.out.String(), tt.stub+" ASSERT FAILED")
		})
	}
}

func TestStyleStubs(t *testing.T) {
	ctx := context.Background()

	t.Run("set by name with check", func(t *testing.T) {
		h := newHarness(t, sim.DefaultConfig())

		require.NoError(t, h.session.Invoke(ctx, "SetActiveMVStyle", Args{"style": "S00002_Scrapbook", "check": true}))

		style, err := h.core.ActiveStyle()
		require.NoError(t, err)
		assert.Equal(t, "S00002_Scrapbook", style)
	})

	t.Run("check rejects unknown style", func(t *testing.T) {
		h := newHarness(t, sim.DefaultConfig())

		err := h.session.Invoke(ctx, "SetActiveMVStyle", Args{"style": "Nope", "check": true})
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrAssertion))
	})

	t.Run("enumerate by index", func(t *testing.T) {
		h := newHarness(t, sim.DefaultConfig())

		require.NoError(t, h.session.Invoke(ctx, "EnumAndSetMVStyle", Args{"style": 1}))

		style, _ := h.core.ActiveStyle()
		assert.Equal(t, "S00001_Reflections", style)
	})

	t.Run("enumerate by name fragment", func(t *testing.T) {
		h := newHarness(t, sim.DefaultConfig())

		require.NoError(t, h.session.Invoke(ctx, "EnumAndSetMVStyle", Args{"style": "scrap"}))

		style, _ := h.core.ActiveStyle()
		assert.Equal(t, "S00002_Scrapbook", style)
	})

	t.Run("enumerate index out of range", func(t *testing.T) {
		h := newHarness(t, sim.DefaultConfig())

		require.Error(t, h.session.Invoke(ctx, "EnumAndSetMVStyle", Args{"style": 9}))
	})
}

func TestPutStubs(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		stub    string
		args    Args
		wantErr bool
	}{
		{name: "aspect ratio", stub: "PutAspectRatio", args: Args{"ratio": 2}},
		{name: "unknown aspect ratio", stub: "PutAspectRatio", args: Args{"ratio": 42}, wantErr: true},
		{name: "music level", stub: "PutMusicLevel", args: Args{"level": 0.3}},
		{name: "music level bounds", stub: "PutMusicLevel", args: Args{"level": -0.1}, wantErr: true},
		{name: "sync sound level", stub: "PutSyncSoundLevel", args: Args{"level": 1}},
		{name: "sync sound level bounds", stub: "PutSyncSoundLevel", args: Args{"level": 1.01}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, sim.DefaultConfig())

			err := h.session.Invoke(ctx, tt.stub, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, failure.ErrAssertion))

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestPutDescriptorFolder_CreatesDirectory(t *testing.T) {
	h := newHarness(t, sim.DefaultConfig())
	dir := filepath.Join(t.TempDir(), "nested", "dscrp")

	require.NoError(t, h.session.Invoke(context.Background(), "PutDescriptorFolder", Args{"path": dir}))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Contains(t, h.core.Calls(), "SetDescriptorFolder")
}

func TestClearDescriptors(t *testing.T) {
	h := newHarness(t, sim.DefaultConfig())
	ctx := context.Background()

	// No descriptor folder yet is fine.
	require.NoError(t, h.session.Invoke(ctx, "ClearDescriptors", nil))

	root := filepath.Join(h.core.CommonDataFolder(), "dscrp")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "video"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.dsc"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "video", "b.dsc"), []byte("y"), 0o644))

	require.NoError(t, h.session.Invoke(ctx, "ClearDescriptors", nil))

	_, err := os.Stat(filepath.Join(root, "a.dsc"))
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(filepath.Join(root, "video", "b.dsc"))
	assert.True(t, os.IsNotExist(err))

	info, err := os.Stat(filepath.Join(root, "video"))
	require.NoError(t, err, "directories are kept")
	assert.True(t, info.IsDir())
}

func TestProductionStubs(t *testing.T) {
	tests := []struct {
		name    string
		stub    string
		args    func(t *testing.T) Args
		wantErr error
		check   func(t *testing.T, p sim.Production)
	}{
		{
			name: "title",
			stub: "PutTitleString",
			args: func(*testing.T) Args { return Args{"title": "Summer 2024"} },
			check: func(t *testing.T, p sim.Production) {
				assert.Equal(t, "Summer 2024", p.Title)
			},
		},
		{
			name: "credits",
			stub: "PutCreditsString",
			args: func(*testing.T) Args { return Args{"credits": "Directed by nobody"} },
			check: func(t *testing.T, p sim.Production) {
				assert.Equal(t, "Directed by nobody", p.Credits)
			},
		},
		{
			name: "copyright message only",
			stub: "AddCopyright",
			args: func(*testing.T) Args { return Args{"message": "(c) muvee"} },
			check: func(t *testing.T, p sim.Production) {
				assert.Equal(t, "(c) muvee", p.PrimaryCaption.Text)
				assert.Equal(t, native.TextFormat{}, p.PrimaryCaption.Format)
			},
		},
		{
			name: "copyright with format",
			stub: "AddCopyright",
			args: func(*testing.T) Args {
				return Args{"message": "(c)", "color": 255, "x": 0.1, "y": 0.8, "width": 0.5, "height": 0.1}
			},
			check: func(t *testing.T, p sim.Production) {
				f := p.PrimaryCaption.Format
				assert.Equal(t, int64(255), f.Color)
				assert.Equal(t, 0.1, f.X)
				assert.Equal(t, 0.8, f.Y)
				assert.Equal(t, 0.5, f.Width)
				assert.Equal(t, 0.1, f.Height)
			},
		},
		{
			name: "logo with placement opacity and crop",
			stub: "AddLogo",
			args: func(t *testing.T) Args {
				return Args{
					"path":      mediaFile(t, "logo.png"),
					"placement": []any{0.8, 0.8, 1, 1},
					"opacity":   0.5,
					"crop":      []any{0, 0, 1, 0.5},
				}
			},
			check: func(t *testing.T, p sim.Production) {
				assert.Equal(t, "logo.png", filepath.Base(p.Logo))
				require.NotNil(t, p.LogoPlacement)
				assert.Equal(t, native.Rect{Left: 0.8, Top: 0.8, Right: 1, Bottom: 1}, *p.LogoPlacement)
				assert.Equal(t, 0.5, p.LogoOpacity)
				require.NotNil(t, p.LogoCrop)
				assert.Equal(t, 0.5, p.LogoCrop.Bottom)
			},
		},
		{
			name: "logo path only",
			stub: "AddLogo",
			args: func(t *testing.T) Args { return Args{"path": mediaFile(t, "logo.png")} },
			check: func(t *testing.T, p sim.Production) {
				assert.NotEmpty(t, p.Logo)
				assert.Nil(t, p.LogoPlacement)
				assert.Nil(t, p.LogoCrop)
			},
		},
		{
			name:    "missing logo",
			stub:    "AddLogo",
			args:    func(*testing.T) Args { return Args{"path": "/no/such/logo.png"} },
			wantErr: failure.ErrAssertion,
		},
		{
			name: "short placement",
			stub: "AddLogo",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "logo.png"), "placement": []any{0.1, 0.2}}
			},
			wantErr: failure.ErrAssertion,
		},
		{
			name: "opacity out of range",
			stub: "AddLogo",
			args: func(t *testing.T) Args {
				return Args{"path": mediaFile(t, "logo.png"), "opacity": 2}
			},
			wantErr: failure.ErrNative,
		},
		{
			name: "timeline dump",
			stub: "ConfigRenderTL2File",
			args: func(t *testing.T) Args { return Args{"path": mediaFile(t, "tl.bin")} },
			check: func(t *testing.T, p sim.Production) {
				assert.Equal(t, "tl.bin", filepath.Base(p.TimelineDump))
			},
		},
		{
			name:    "timeline dump needs bin file",
			stub:    "ConfigRenderTL2File",
			args:    func(t *testing.T) Args { return Args{"path": mediaFile(t, "tl.txt")} },
			wantErr: failure.ErrAssertion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, sim.DefaultConfig())

			err := h.session.Invoke(context.Background(), tt.stub, tt.args(t))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), err.Error())
				assert.Contains(t, h.out.String(), tt.stub+" ASSERT FAILED")

				return
			}

			require.NoError(t, err)
			tt.check(t, h.core.Production())
		})
	}
}

func TestAddSourceAnchorOperator(t *testing.T) {
	ctx := context.Background()

	t.Run("anchors to the indexed music source", func(t *testing.T) {
		h := newHarness(t, sim.DefaultConfig())

		require.NoError(t, h.session.Invoke(ctx, "Init", nil))
		require.NoError(t, h.session.Invoke(ctx, "AddSourceMusic", Args{"path": mediaFile(t, "a.mp3")}))
		require.NoError(t, h.session.Invoke(ctx, "AddSourceMusic", Args{"path": mediaFile(t, "b.mp3")}))
		require.NoError(t, h.session.Invoke(ctx, "AddSourceAnchorOperator",
			Args{"path": mediaFile(t, "fx.scm"), "music_index": 1, "anchor": 12.5}))

		sources := h.core.Sources()
		require.Len(t, sources, 3)

		second, ok := sources[1].(*sim.Source)
		require.True(t, ok)

		operator, ok := sources[2].(*sim.Source)
		require.True(t, ok)
		assert.Equal(t, native.SourceOperator, operator.Type())

		media, ok := operator.Param("ANCHOR_MEDIA")
		require.True(t, ok)
		assert.Equal(t, second.UniqueID(), media)

		at, ok := operator.Param("ANCHOR_TIME")
		require.True(t, ok)
		assert.Equal(t, 12.5, at)
	})

	t.Run("music index out of range", func(t *testing.T) {
		h := newHarness(t, sim.DefaultConfig())

		require.NoError(t, h.session.Invoke(ctx, "Init", nil))

		err := h.session.Invoke(ctx, "AddSourceAnchorOperator",
			Args{"path": mediaFile(t, "fx.scm"), "music_index": 0, "anchor": 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, failure.ErrAssertion))
		assert.Empty(t, h.core.Sources())
	})
}

func TestVerifyVideo(t *testing.T) {
	tests := []struct {
		name    string
		args    Args
		wantErr bool
	}{
		{
			name: "matches",
			args: Args{"width": 1920, "height": 1080, "aspect_ratio": 2, "aspect_ratio_x": 16, "aspect_ratio_y": 9},
		},
		{
			name:    "wrong size",
			args:    Args{"width": 1280, "height": 720, "aspect_ratio": 2, "aspect_ratio_x": 16, "aspect_ratio_y": 9},
			wantErr: true,
		},
		{
			name:    "wrong aspect ratio",
			args:    Args{"width": 1920, "height": 1080, "aspect_ratio": 1, "aspect_ratio_x": 16, "aspect_ratio_y": 9},
			wantErr: true,
		},
		{
			name:    "wrong aspect components",
			args:    Args{"width": 1920, "height": 1080, "aspect_ratio": 2, "aspect_ratio_x": 4, "aspect_ratio_y": 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, sim.DefaultConfig())

			args := Args{"path": mediaFile(t, "clip.mp4")}
			for k, v := range tt.args {
				args[k] = v
			}

			err := h.session.Invoke(context.Background(), "VerifyVideo", args)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, failure.ErrAssertion))
				assert.Contains(t, err.Error(), "verification failed")
			} else {
				require.NoError(t, err)
			}

			assert.Empty(t, h.core.Sources(), "verified videos are not added")
		})
	}
}
