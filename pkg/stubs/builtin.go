package stubs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mufat/mufat/pkg/failure"
	"github.com/mufat/mufat/pkg/native"
)

type none struct{}

type initParams struct {
	Flags native.InitFlags `mapstructure:"flags"`
}

type styleParams struct {
	Style string `mapstructure:"style"`
	// Check verifies the style is installed before selecting it.
	Check bool `mapstructure:"check"`
}

type ratioParams struct {
	Ratio native.AspectRatio `mapstructure:"ratio"`
}

type levelParams struct {
	Level float64 `mapstructure:"level"`
}

type rangeParams struct {
	Floor   float64 `mapstructure:"floor"`
	Ceiling float64 `mapstructure:"ceiling"`
}

// Default returns a registry holding the built-in stubs.
func Default() *Registry {
	r := NewRegistry()

	r.MustRegister(
		Define("Init", "Initializes the runtime.", initParams{}, initCore),
		Define("Release", "Releases the runtime.", none{}, releaseCore),

		Define("AddSourceImage", "Adds an image source.", pathParams{},
			addSimple(native.SourceImage, native.LoadVerifySupport)),
		Define("AddSourceImageWithCaption", "Adds an image source with a caption and verifies the caption round trip.",
			captionParams{}, addSourceImageWithCaption),
		Define("AddSourceImageWithMagicSpot", "Adds an image source with magic-spot rectangles (x1, x2, y1, y2).",
			rectParams{}, addSourceImageWithMagicSpot),
		Define("AddSourceMusic", "Adds a music source.", pathParams{},
			addSimple(native.SourceMusic, native.LoadVerifySupport)),
		Define("AddSourceMusicClip", "Adds a music source clipped to [start, stop].", clipParams{}, addSourceMusicClip),
		Define("AddSourceTextWithMinDuration", "Adds a text source shown for at least duration seconds.",
			textParams{}, addSourceTextWithMinDuration),
		Define("AddSourceVideo", "Adds a video source.", pathParams{},
			addSimple(native.SourceVideo, native.LoadVerifySupport)),
		Define("AddSourceVideoNoProxy", "Adds a video source without a low-resolution proxy.", pathParams{},
			addSimple(native.SourceVideo, native.LoadVerifySupport|native.LoadDisableLoRezProxy)),
		Define("AddSourceVideoWithCapHL", "Adds a video source with a captioned highlight.",
			capHLParams{}, addSourceVideoWithCapHL),
		Define("AddSourceVideoWithMagicMoments", "Adds a video source with highlights and verifies they survive a save and load.",
			spanParams{}, addSourceVideoWithMagicMoments),
		Define("AddSourceVideoWithExclusion", "Adds a video source with excluded ranges.",
			spanParams{}, addSourceVideoWithExclusion),
		Define("AddSourceAnchorOperator", "Adds an operator source anchored at a time of the n-th music source.",
			anchorParams{}, addSourceAnchorOperator),
		Define("VerifyVideo", "Checks the size and aspect ratio of a video file.", videoInfoParams{}, verifyVideo),

		Define("SetActiveMVStyle", "Selects the active style by name.", styleParams{}, setActiveStyle),
		Define("EnumAndSetMVStyle", "Selects the first installed style matching an index or a name fragment.",
			styleParams{}, enumAndSetStyle),
		Define("PutAspectRatio", "Sets the output aspect ratio.", ratioParams{}, putAspectRatio),
		Define("PutMusicLevel", "Sets the music level in [0, 1].", levelParams{}, putMusicLevel),
		Define("PutSyncSoundLevel", "Sets the sync sound level in [0, 1].", levelParams{}, putSyncSoundLevel),
		Define("PutDescriptorFolder", "Sets the descriptor folder, creating it if needed.", pathParams{}, putDescriptorFolder),
		Define("PutTitleString", "Sets the opening title.", titleParams{}, putTitleString),
		Define("PutCreditsString", "Sets the closing credits.", creditsParams{}, putCreditsString),
		Define("AddCopyright", "Sets the copyright caption and optionally its color and rectangle.",
			copyrightParams{}, addCopyright),
		Define("AddLogo", "Overlays a logo image with optional placement, opacity and crop rect.",
			logoParams{}, addLogo),
		Define("ConfigRenderTL2File", "Dumps the render timeline to a .bin file on the next render.",
			pathParams{}, configRenderTL2File),

		Define("AnalyseTillDone", "Analyses every source and waits for completion.",
			analyseParams{Resolution: defaultResolution, Timeout: defaultPolls}, analyseTillDone),
		Define("MakeTillDone", "Makes the timeline synchronously.", makeParams{}, makeTillDone),
		Define("ThreadedMakeTillDone", "Makes the timeline in the background and waits for completion.",
			makeParams{}, threadedMakeTillDone),
		Define("ThreadedMakeForSaveTillDone", "Makes a timeline for saving in the background and waits for completion.",
			makeParams{}, threadedMakeForSaveTillDone),
		Define("SaveTillDone", "Renders the timeline to a file and waits for completion.",
			saveParams{Resolution: defaultResolution, Timeout: defaultPolls}, saveTillDone),
		Define("SaveTillDoneWithPreview", "Renders the timeline to a file while previewing it in a window.",
			saveParams{Resolution: defaultResolution, Timeout: defaultPolls, Width: defaultWidth, Height: defaultHeight},
			saveTillDoneWithPreview),
		Define("PreviewTillDone", "Previews the timeline in a window until it finishes or the window closes.",
			previewParams{Timeline: native.TimelineMuvee, Width: defaultWidth, Height: defaultHeight}, previewTillDone),
		Define("AddSourceVideoWithPreviewTillDone", "Adds a video source and previews it in a window.",
			sourcePreviewParams{Width: defaultWidth, Height: defaultHeight}, addSourceVideoWithPreviewTillDone),

		Define("CheckLastTimelineForRange", "Checks the last made timeline lasts between floor and ceiling seconds.",
			rangeParams{}, checkLastTimelineForRange),
		Define("ClearDescriptors", "Deletes cached descriptor files.", none{}, clearDescriptors),
	)

	return r
}

func initCore(_ context.Context, s *Session, p *initParams) error {
	return s.check("Init", nil, s.Core.Init(p.Flags))
}

func releaseCore(_ context.Context, s *Session, _ *none) error {
	return s.check("Release", nil, s.Core.Release())
}

func setActiveStyle(_ context.Context, s *Session, p *styleParams) error {
	const op = "SetActiveMVStyle"

	if p.Check {
		styles, err := s.Core.Styles()
		if err := s.check(op+": Styles", nil, err); err != nil {
			return err
		}

		if err := assertf(len(styles) > 0, op, "no styles found"); err != nil {
			return err
		}

		found := false

		for _, name := range styles {
			if name == p.Style {
				found = true

				break
			}
		}

		if err := assertf(found, op, "style %q is not installed", p.Style); err != nil {
			return err
		}
	}

	return s.check(op, nil, s.Core.SetActiveStyle(p.Style))
}

func enumAndSetStyle(_ context.Context, s *Session, p *styleParams) error {
	const op = "EnumAndSetMVStyle"

	styles, err := s.Core.Styles()
	if err := s.check(op+": Styles", nil, err); err != nil {
		return err
	}

	name := ""

	if idx, err := strconv.Atoi(p.Style); err == nil {
		if err := assertf(idx >= 0 && idx < len(styles), op,
			"style index %d out of range [0, %d)", idx, len(styles)); err != nil {
			return err
		}

		name = styles[idx]
	} else {
		want := strings.ToLower(p.Style)

		for _, candidate := range styles {
			if strings.Contains(strings.ToLower(candidate), want) {
				name = candidate

				break
			}
		}
	}

	if err := assertf(name != "", op, "no style matches %q", p.Style); err != nil {
		return err
	}

	return s.check(op, nil, s.Core.SetActiveStyle(name))
}

func putAspectRatio(_ context.Context, s *Session, p *ratioParams) error {
	if err := assertf(p.Ratio.Valid(), "PutAspectRatio", "unknown aspect ratio %d", p.Ratio); err != nil {
		return err
	}

	return s.check("PutAspectRatio", nil, s.Core.SetAspectRatio(p.Ratio))
}

func putMusicLevel(_ context.Context, s *Session, p *levelParams) error {
	if err := assertf(p.Level >= 0 && p.Level <= 1, "PutMusicLevel", "level %v outside [0, 1]", p.Level); err != nil {
		return err
	}

	return s.check("PutMusicLevel", nil, s.Core.SetMusicLevel(p.Level))
}

func putSyncSoundLevel(_ context.Context, s *Session, p *levelParams) error {
	if err := assertf(p.Level >= 0 && p.Level <= 1, "PutSyncSoundLevel", "level %v outside [0, 1]", p.Level); err != nil {
		return err
	}

	return s.check("PutSyncSoundLevel", nil, s.Core.SetSyncSoundLevel(p.Level))
}

func putDescriptorFolder(_ context.Context, s *Session, p *pathParams) error {
	path := s.Path(p.Path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return failure.Wrap(failure.KindNative, "PutDescriptorFolder", err)
	}

	return s.check("PutDescriptorFolder", nil, s.Core.SetDescriptorFolder(path))
}

func checkLastTimelineForRange(_ context.Context, s *Session, p *rangeParams) error {
	const op = "CheckLastTimelineForRange"

	dur, err := s.Core.TimelineDuration(native.TimelineFinalPreview)
	if err := s.check(op+": TimelineDuration", nil, err); err != nil {
		return err
	}

	if err := assertf(dur <= p.Ceiling, op, "duration %v above ceiling %v", dur, p.Ceiling); err != nil {
		return err
	}

	return assertf(dur >= p.Floor, op, "duration %v below floor %v", dur, p.Floor)
}

func clearDescriptors(_ context.Context, s *Session, _ *none) error {
	root := filepath.Join(s.Core.CommonDataFolder(), "dscrp")

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		s.Log.WithField("path", path).Debug("Deleting descriptor")

		return os.Remove(path)
	})
	if err != nil {
		return failure.Wrap(failure.KindNative, "ClearDescriptors", err)
	}

	return nil
}
