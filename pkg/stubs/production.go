package stubs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mufat/mufat/pkg/native"
)

type titleParams struct {
	Title string `mapstructure:"title"`
}

type creditsParams struct {
	Credits string `mapstructure:"credits"`
}

// copyrightParams leaves every format field that is not given untouched.
type copyrightParams struct {
	Message string   `mapstructure:"message"`
	Color   *int64   `mapstructure:"color"`
	X       *float64 `mapstructure:"x"`
	Y       *float64 `mapstructure:"y"`
	Width   *float64 `mapstructure:"width"`
	Height  *float64 `mapstructure:"height"`
}

type logoParams struct {
	Path      string    `mapstructure:"path"`
	Placement []float64 `mapstructure:"placement"`
	Opacity   *float64  `mapstructure:"opacity"`
	Crop      []float64 `mapstructure:"crop"`
}

func putTitleString(_ context.Context, s *Session, p *titleParams) error {
	const op = "PutTitleString"

	tc, ok := s.Core.(native.TitleCredits)
	if err := assertf(ok, op, "runtime does not support titles"); err != nil {
		return err
	}

	return s.check(op, nil, tc.SetTitleString(p.Title))
}

func putCreditsString(_ context.Context, s *Session, p *creditsParams) error {
	const op = "PutCreditsString"

	tc, ok := s.Core.(native.TitleCredits)
	if err := assertf(ok, op, "runtime does not support credits"); err != nil {
		return err
	}

	return s.check(op, nil, tc.SetCreditsString(p.Credits))
}

func addCopyright(_ context.Context, s *Session, p *copyrightParams) error {
	const op = "AddCopyright"

	pc, ok := s.Core.(native.PrimaryCaptioner)
	if err := assertf(ok, op, "runtime does not support a primary caption"); err != nil {
		return err
	}

	caption, err := pc.PrimaryCaption()
	if err := s.check(op+": PrimaryCaption", nil, err); err != nil {
		return err
	}

	caption.Text = p.Message

	if p.Color != nil {
		caption.Format.Color = *p.Color
	}

	if p.X != nil {
		caption.Format.X = *p.X
	}

	if p.Y != nil {
		caption.Format.Y = *p.Y
	}

	if p.Width != nil {
		caption.Format.Width = *p.Width
	}

	if p.Height != nil {
		caption.Format.Height = *p.Height
	}

	return s.check(op, nil, pc.SetPrimaryCaption(caption))
}

func rectOf(op, name string, v []float64) (native.Rect, error) {
	if err := assertf(len(v) == 4, op, "%s needs 4 values, got %d", name, len(v)); err != nil {
		return native.Rect{}, err
	}

	return native.Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

func addLogo(_ context.Context, s *Session, p *logoParams) error {
	const op = "AddLogo"

	overlay, ok := s.Core.(native.Overlay)
	if err := assertf(ok, op, "runtime does not support overlays"); err != nil {
		return err
	}

	path := s.Path(p.Path)

	info, err := os.Stat(path)
	if err := assertf(err == nil && !info.IsDir(), op, "logo %s is not a file", path); err != nil {
		return err
	}

	if err := s.check(op+": SetOverlaySourceFile", nil, overlay.SetOverlaySourceFile(path)); err != nil {
		return err
	}

	if p.Placement != nil {
		r, err := rectOf(op, "placement", p.Placement)
		if err != nil {
			return err
		}

		if err := s.check(op+": SetOverlayPlacement", nil, overlay.SetOverlayPlacement(r)); err != nil {
			return err
		}
	}

	if p.Opacity != nil {
		if err := s.check(op+": SetOverlayOpacity", nil, overlay.SetOverlayOpacity(*p.Opacity)); err != nil {
			return err
		}
	}

	if p.Crop != nil {
		r, err := rectOf(op, "crop", p.Crop)
		if err != nil {
			return err
		}

		if err := s.check(op+": SetOverlayCropRect", nil, overlay.SetOverlayCropRect(r)); err != nil {
			return err
		}
	}

	return nil
}

func configRenderTL2File(_ context.Context, s *Session, p *pathParams) error {
	const op = "ConfigRenderTL2File"

	dumper, ok := s.Core.(native.TimelineDumper)
	if err := assertf(ok, op, "runtime cannot dump timelines"); err != nil {
		return err
	}

	path := s.Path(p.Path)

	info, err := os.Stat(path)
	if err := assertf(err == nil && !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".bin"),
		op, "%s is not an existing .bin file", path); err != nil {
		return err
	}

	return s.check(op, nil, dumper.ConfigRenderTL2File(path))
}
