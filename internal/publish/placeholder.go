package publish

import (
	"encoding/xml"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// Placeholder is an empty document standing in for one that was not built,
// so the installed software finds a valid, if empty, file.
type Placeholder struct {
	Path       string
	Root       string
	Attributes map[string]string
}

type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
}

// Render returns the document: an XML declaration followed by a single
// empty root element.
func (p Placeholder) Render() ([]byte, error) {
	if p.Root == "" {
		return nil, fmt.Errorf("placeholder %s: missing root element", p.Path)
	}
	el := element{XMLName: xml.Name{Local: p.Root}}
	for _, k := range slices.Sorted(maps.Keys(p.Attributes)) {
		el.Attrs = append(el.Attrs, xml.Attr{Name: xml.Name{Local: k}, Value: p.Attributes[k]})
	}
	body, err := xml.Marshal(el)
	if err != nil {
		return nil, fmt.Errorf("placeholder %s: %w", p.Path, err)
	}
	out := []byte(`<?xml version="1.0" encoding="utf-8" ?>` + "\n")
	out = append(out, body...)
	return append(out, '\n'), nil
}

// Write renders p to p.Path.
func (p Placeholder) Write() error {
	data, err := p.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p.Path, data, 0o644)
}
