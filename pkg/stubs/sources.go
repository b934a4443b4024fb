package stubs

import (
	"context"
	"fmt"
	"os"

	"github.com/mufat/mufat/pkg/native"
)

type pathParams struct {
	Path string `mapstructure:"path"`
}

type captionParams struct {
	Path    string `mapstructure:"path"`
	Caption string `mapstructure:"caption"`
}

type rectParams struct {
	Path  string      `mapstructure:"path"`
	Rects [][]float64 `mapstructure:"rects"`
}

type clipParams struct {
	Path  string  `mapstructure:"path"`
	Start float64 `mapstructure:"start"`
	Stop  float64 `mapstructure:"stop"`
}

type textParams struct {
	Text     string  `mapstructure:"text"`
	Duration float64 `mapstructure:"duration"`
}

type capHLParams struct {
	Path    string  `mapstructure:"path"`
	Caption string  `mapstructure:"caption"`
	Start   float64 `mapstructure:"start"`
	End     float64 `mapstructure:"end"`
}

type spanParams struct {
	Path  string      `mapstructure:"path"`
	Spans [][]float64 `mapstructure:"spans"`
}

// createSource creates a source of type t and loads path into it.
func (s *Session) createSource(op, path string, t native.SourceType, flags native.LoadFlags) (native.Source, error) {
	src, err := s.Core.CreateSource(t)
	if err := s.check(op+": CreateSource", src != nil, err); err != nil {
		return nil, err
	}

	switch t {
	case native.SourceImage, native.SourceMusic, native.SourceVideo, native.SourceOperator:
		path = s.Path(path)
		if _, err := os.Stat(path); err != nil {
			return nil, assertf(false, op, "file %s does not exist", path)
		}

		ok, err := src.LoadFile(path, flags)
		if err := s.check(op+": LoadFile", ok, err); err != nil {
			return nil, err
		}
	default:
		if err := src.Load(path, flags); err != nil {
			return nil, s.check(op+": Load", nil, err)
		}
	}

	return src, nil
}

func (s *Session) addSource(op string, src native.Source, t native.SourceType, flags native.LoadFlags) error {
	ok, err := s.Core.AddSource(t, src, flags)

	return s.check(op+": AddSource", ok, err)
}

func addSimple(t native.SourceType, flags native.LoadFlags) func(ctx context.Context, s *Session, p *pathParams) error {
	return func(_ context.Context, s *Session, p *pathParams) error {
		op := "AddSource" + t.String()

		src, err := s.createSource(op, p.Path, t, flags)
		if err != nil {
			return err
		}

		return s.addSource(op, src, t, flags)
	}
}

func addSourceImageWithCaption(_ context.Context, s *Session, p *captionParams) error {
	const op = "AddSourceImageWithCaption"

	src, err := s.createSource(op, p.Path, native.SourceImage, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	captioned, ok := src.(native.Captioned)
	if err := assertf(ok, op, "source does not support captions"); err != nil {
		return err
	}

	captions := WrapCaptions(captioned.Captions())

	_, err = captions.Raw().Add(p.Caption)
	if err := s.check(op+": AddCaption", nil, err); err != nil {
		return err
	}

	if err := assertf(captions.Raw().Len() > 0, op, "caption collection is empty"); err != nil {
		return err
	}

	if err := captions.Verify(op); err != nil {
		return err
	}

	return s.addSource(op, src, native.SourceImage, native.LoadVerifySupport)
}

func addSourceImageWithMagicSpot(_ context.Context, s *Session, p *rectParams) error {
	const op = "AddSourceImageWithMagicSpot"

	src, err := s.createSource(op, p.Path, native.SourceImage, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	rects, ok := src.(native.TargetRects)
	if err := assertf(ok, op, "source does not support target rects"); err != nil {
		return err
	}

	for i, r := range p.Rects {
		if err := assertf(len(r) == 4, op, "rect %d needs 4 coordinates, got %d", i, len(r)); err != nil {
			return err
		}

		if err := s.check(op+": AddTargetRect", nil, rects.AddTargetRect(r[0], r[1], r[2], r[3])); err != nil {
			return err
		}
	}

	return s.addSource(op, src, native.SourceImage, native.LoadVerifySupport)
}

func addSourceMusicClip(_ context.Context, s *Session, p *clipParams) error {
	const op = "AddSourceMusicClip"

	src, err := s.createSource(op, p.Path, native.SourceMusic, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	clipper, ok := src.(native.Clipper)
	if err := assertf(ok, op, "source does not support clipping"); err != nil {
		return err
	}

	if err := s.check(op+": SetClip", nil, clipper.SetClip(p.Start, p.Stop)); err != nil {
		return err
	}

	return s.addSource(op, src, native.SourceMusic, native.LoadVerifySupport)
}

func addSourceTextWithMinDuration(_ context.Context, s *Session, p *textParams) error {
	const op = "AddSourceTextWithMinDuration"

	src, err := s.createSource(op, p.Text, native.SourceText, native.LoadContext)
	if err != nil {
		return err
	}

	if err := s.check(op+": SetMinDuration", nil, src.SetMinDuration(p.Duration)); err != nil {
		return err
	}

	return s.addSource(op, src, native.SourceText, native.LoadContext)
}

func addSourceVideoWithCapHL(_ context.Context, s *Session, p *capHLParams) error {
	const op = "AddSourceVideoWithCapHL"

	src, err := s.createSource(op, p.Path, native.SourceVideo, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	hl, ok := src.(native.CaptionHighlighter)
	if err := assertf(ok, op, "source does not support caption highlights"); err != nil {
		return err
	}

	if err := s.check(op+": SetCaptionHighlight", nil, hl.SetCaptionHighlight(p.Caption, p.Start, p.End, nil)); err != nil {
		return err
	}

	if err := s.verifyDescriptors(op, src); err != nil {
		return err
	}

	return s.addSource(op, src, native.SourceVideo, native.LoadVerifySupport)
}

func addSourceVideoWithMagicMoments(_ context.Context, s *Session, p *spanParams) error {
	const op = "AddSourceVideoWithMagicMoments"

	src, err := s.createSource(op, p.Path, native.SourceVideo, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	hl, ok := src.(native.Highlighter)
	if err := assertf(ok, op, "source does not support highlights"); err != nil {
		return err
	}

	for i, pair := range p.Spans {
		if err := assertf(len(pair) == 2, op, "highlight %d needs start and stop, got %d values", i, len(pair)); err != nil {
			return err
		}

		if err := s.check(op+": SetHighlight", nil, hl.SetHighlight(pair[0], pair[1])); err != nil {
			return err
		}
	}

	if err := VerifyHighlights(op, hl); err != nil {
		return err
	}

	return s.addSource(op, src, native.SourceVideo, native.LoadVerifySupport)
}

func addSourceVideoWithExclusion(_ context.Context, s *Session, p *spanParams) error {
	const op = "AddSourceVideoWithExclusion"

	src, err := s.createSource(op, p.Path, native.SourceVideo, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	ex, ok := src.(native.Excluder)
	if err := assertf(ok, op, "source does not support exclusions"); err != nil {
		return err
	}

	for i, pair := range p.Spans {
		if err := assertf(len(pair) == 2, op, "exclusion %d needs start and stop, got %d values", i, len(pair)); err != nil {
			return err
		}

		if err := s.check(op+": SetExclusion", nil, ex.SetExclusion(pair[0], pair[1])); err != nil {
			return err
		}
	}

	got, err := ex.Exclusions()
	if err := s.check(op+": Exclusions", nil, err); err != nil {
		return err
	}

	if err := assertf(len(got) == len(p.Spans), op,
		"expected %d exclusions, runtime holds %d", len(p.Spans), len(got)); err != nil {
		return err
	}

	if err := s.verifyDescriptors(op, src); err != nil {
		return err
	}

	return s.addSource(op, src, native.SourceVideo, native.LoadVerifySupport)
}

func (s *Session) verifyDescriptors(op string, src native.Source) error {
	v, ok := src.(native.DescriptorVerifier)
	if !ok {
		return nil
	}

	verified, err := v.VerifyUserDescriptors()

	return s.check(fmt.Sprintf("%s: VerifyUserDescriptors", op), verified, err)
}

type anchorParams struct {
	Path       string  `mapstructure:"path"`
	MusicIndex int     `mapstructure:"music_index"`
	Anchor     float64 `mapstructure:"anchor"`
}

type videoInfoParams struct {
	Path         string             `mapstructure:"path"`
	Width        int                `mapstructure:"width"`
	Height       int                `mapstructure:"height"`
	AspectRatio  native.AspectRatio `mapstructure:"aspect_ratio"`
	AspectRatioX int                `mapstructure:"aspect_ratio_x"`
	AspectRatioY int                `mapstructure:"aspect_ratio_y"`
}

// addSourceAnchorOperator adds an operator source anchored at a point of
// an already added music source.
func addSourceAnchorOperator(_ context.Context, s *Session, p *anchorParams) error {
	const op = "AddSourceAnchorOperator"

	lister, ok := s.Core.(native.SourceLister)
	if err := assertf(ok, op, "runtime cannot list sources"); err != nil {
		return err
	}

	music, err := lister.SourceIDs(native.SourceMusic)
	if err := s.check(op+": SourceIDs", nil, err); err != nil {
		return err
	}

	if err := assertf(p.MusicIndex >= 0 && p.MusicIndex < len(music), op,
		"music index %d out of range [0, %d)", p.MusicIndex, len(music)); err != nil {
		return err
	}

	src, err := s.createSource(op, p.Path, native.SourceOperator, native.LoadNull)
	if err != nil {
		return err
	}

	operator, ok := src.(native.Operator)
	if err := assertf(ok, op, "source does not take operator parameters"); err != nil {
		return err
	}

	if err := s.check(op+": SetParam", nil, operator.SetParam("ANCHOR_MEDIA", music[p.MusicIndex])); err != nil {
		return err
	}

	if err := s.check(op+": SetParam", nil, operator.SetParam("ANCHOR_TIME", p.Anchor)); err != nil {
		return err
	}

	return s.addSource(op, src, native.SourceOperator, native.LoadNull)
}

// verifyVideo loads a video and checks its stream info. The source is not
// added to the production.
func verifyVideo(_ context.Context, s *Session, p *videoInfoParams) error {
	const op = "VerifyVideo"

	src, err := s.createSource(op, p.Path, native.SourceVideo, native.LoadVerifySupport)
	if err != nil {
		return err
	}

	inspector, ok := src.(native.VideoInspector)
	if err := assertf(ok, op, "source does not report video info"); err != nil {
		return err
	}

	info, err := inspector.VideoInfo()
	if err := s.check(op+": VideoInfo", nil, err); err != nil {
		return err
	}

	if err := assertf(info.Width == p.Width && info.Height == p.Height, op,
		"media width/height verification failed: %s is %dx%d", p.Path, info.Width, info.Height); err != nil {
		return err
	}

	if err := assertf(info.AspectRatio == p.AspectRatio, op,
		"media aspect ratio verification failed: %s is %d", p.Path, info.AspectRatio); err != nil {
		return err
	}

	return assertf(info.AspectRatioX == p.AspectRatioX && info.AspectRatioY == p.AspectRatioY, op,
		"media aspect ratio verification failed: %s is %d:%d", p.Path, info.AspectRatioX, info.AspectRatioY)
}
