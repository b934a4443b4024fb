package sim

import (
	"encoding/xml"
	"fmt"
	"sync"

	"github.com/mufat/mufat/pkg/native"
)

// Captions is an in-memory caption collection serialized as XML.
type Captions struct {
	mu    sync.Mutex
	items []native.Caption
}

var _ native.CaptionCollection = (*Captions)(nil)

type captionsXML struct {
	XMLName  xml.Name         `xml:"captions"`
	Captions []native.Caption `xml:"caption"`
}

func (c *Captions) Add(text string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = append(c.items, native.Caption{Text: text})

	return len(c.items) - 1, nil
}

func (c *Captions) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

func (c *Captions) At(i int) (native.Caption, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.items) {
		return native.Caption{}, fmt.Errorf("caption index %d out of range", i)
	}

	return c.items[i], nil
}

func (c *Captions) Remove(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.items) {
		return fmt.Errorf("caption index %d out of range", i)
	}

	c.items = append(c.items[:i], c.items[i+1:]...)

	return nil
}

func (c *Captions) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil

	return nil
}

func (c *Captions) ToXML() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := xml.Marshal(captionsXML{Captions: c.items})
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func (c *Captions) FromXML(data string) error {
	var doc captionsXML
	if err := xml.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("parsing captions: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = append(c.items, doc.Captions...)

	return nil
}
