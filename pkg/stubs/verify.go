package stubs

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/mufat/mufat/pkg/failure"
	"github.com/mufat/mufat/pkg/native"
)

// Captions wraps a caption collection with round-trip verification.
type Captions struct {
	raw native.CaptionCollection
}

// WrapCaptions wraps c.
func WrapCaptions(c native.CaptionCollection) *Captions {
	return &Captions{raw: c}
}

// Raw returns the underlying collection.
func (c *Captions) Raw() native.CaptionCollection {
	return c.raw
}

// Snapshot returns a copy of every caption.
func (c *Captions) Snapshot() ([]native.Caption, error) {
	out := make([]native.Caption, 0, c.raw.Len())

	for i := 0; i < c.raw.Len(); i++ {
		entry, err := c.raw.At(i)
		if err != nil {
			return nil, err
		}

		out = append(out, entry)
	}

	return out, nil
}

// Verify serializes the captions, clears them, reloads the XML and checks
// that count, ranges and formats came back unchanged.
func (c *Captions) Verify(op string) error {
	before, err := c.Snapshot()
	if err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	data, err := c.raw.ToXML()
	if err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	if err := wellFormed(data); err != nil {
		return failure.New(failure.KindAssertion, op, "caption xml is malformed: "+err.Error())
	}

	if err := c.raw.Clear(); err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	if err := assertf(c.raw.Len() == 0, op, "%d captions left after clear", c.raw.Len()); err != nil {
		return err
	}

	if err := c.raw.FromXML(data); err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	after, err := c.Snapshot()
	if err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	if err := assertf(len(after) == len(before), op,
		"expected %d captions after reload, got %d", len(before), len(after)); err != nil {
		return err
	}

	for i := range before {
		b, a := before[i], after[i]

		if err := assertf(a.Start == b.Start && a.Stop == b.Stop, op,
			"caption %d range changed from [%v, %v] to [%v, %v]", i, b.Start, b.Stop, a.Start, a.Stop); err != nil {
			return err
		}

		if err := assertf(a.Format == b.Format, op, "caption %d format changed", i); err != nil {
			return err
		}
	}

	return nil
}

// wellFormed reports the first syntax error in data.
func wellFormed(data string) error {
	if data == "" {
		return errors.New("empty document")
	}

	dec := xml.NewDecoder(bytes.NewReader([]byte(data)))

	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}
	}
}

// VerifyHighlights saves the highlights of h to a file, clears them, loads
// the file back and checks every range survived.
func VerifyHighlights(op string, h native.Highlighter) error {
	before := make([]native.Span, 0, h.HighlightCount())

	for i := 0; i < h.HighlightCount(); i++ {
		span, err := h.Highlight(i)
		if err != nil {
			return failure.Wrap(failure.KindNative, op, err)
		}

		before = append(before, span)
	}

	dir, err := os.MkdirTemp("", "mufat-highlights-*")
	if err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "highlights.dat")

	if err := h.SaveHighlights(path); err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	if err := h.ClearHighlights(); err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	if err := assertf(h.HighlightCount() == 0, op, "%d highlights left after clear", h.HighlightCount()); err != nil {
		return err
	}

	if err := h.LoadHighlights(path); err != nil {
		return failure.Wrap(failure.KindNative, op, err)
	}

	if err := assertf(h.HighlightCount() == len(before), op,
		"expected %d highlights after reload, got %d", len(before), h.HighlightCount()); err != nil {
		return err
	}

	for i, want := range before {
		got, err := h.Highlight(i)
		if err != nil {
			return failure.Wrap(failure.KindNative, op, err)
		}

		if err := assertf(got == want, op, "highlight %d changed from %v to %v", i, want, got); err != nil {
			return err
		}
	}

	return nil
}
