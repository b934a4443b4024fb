package sim

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mufat/mufat/pkg/native"
)

// Production is the production-wide state set through the optional Core
// views.
type Production struct {
	Title          string
	Credits        string
	PrimaryCaption native.Caption
	Logo           string
	LogoPlacement  *native.Rect
	LogoCrop       *native.Rect
	LogoOpacity    float64
	TimelineDump   string
}

var (
	_ native.TitleCredits     = (*Core)(nil)
	_ native.PrimaryCaptioner = (*Core)(nil)
	_ native.Overlay          = (*Core)(nil)
	_ native.TimelineDumper   = (*Core)(nil)
	_ native.SourceLister     = (*Core)(nil)
)

// Production returns a copy of the production-wide state.
func (c *Core) Production() Production {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.production
}

func (c *Core) SetTitleString(title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetTitleString")
	c.production.Title = title

	return nil
}

func (c *Core) SetCreditsString(credits string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetCreditsString")
	c.production.Credits = credits

	return nil
}

func (c *Core) PrimaryCaption() (native.Caption, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.production.PrimaryCaption, nil
}

func (c *Core) SetPrimaryCaption(caption native.Caption) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.record("SetPrimaryCaption") {
		return fmt.Errorf("set primary caption: %s", c.lastError)
	}

	c.production.PrimaryCaption = caption

	return nil
}

func (c *Core) SetOverlaySourceFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.record("SetOverlaySourceFile") {
		return fmt.Errorf("set overlay source: %s", c.lastError)
	}

	c.production.Logo = path

	return nil
}

func (c *Core) SetOverlayPlacement(r native.Rect) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetOverlayPlacement")

	if err := checkRect(r); err != nil {
		c.lastError = err.Error()

		return err
	}

	c.production.LogoPlacement = &r

	return nil
}

func (c *Core) SetOverlayOpacity(opacity float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetOverlayOpacity")

	if opacity < 0 || opacity > 1 {
		c.lastError = fmt.Sprintf("opacity %v outside [0, 1]", opacity)

		return fmt.Errorf("set overlay opacity: %s", c.lastError)
	}

	c.production.LogoOpacity = opacity

	return nil
}

func (c *Core) SetOverlayCropRect(r native.Rect) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetOverlayCropRect")

	if err := checkRect(r); err != nil {
		c.lastError = err.Error()

		return err
	}

	c.production.LogoCrop = &r

	return nil
}

func (c *Core) ConfigRenderTL2File(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("ConfigRenderTL2File")

	if !strings.EqualFold(filepath.Ext(path), ".bin") {
		c.lastError = "timeline dump must be a .bin file"

		return fmt.Errorf("config render timeline: %s", c.lastError)
	}

	c.production.TimelineDump = path

	return nil
}

func (c *Core) SourceIDs(t native.SourceType) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string

	for _, src := range c.sources {
		if s, ok := src.(*Source); ok && s.kind == t {
			ids = append(ids, s.id)
		}
	}

	return ids, nil
}

func checkRect(r native.Rect) error {
	if r.Right < r.Left || r.Bottom < r.Top {
		return fmt.Errorf("rect %+v has negative extent", r)
	}

	return nil
}
