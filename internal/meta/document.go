// Package meta stores one JSON document per capsule name.
package meta

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is a persisted capsule metadata document: a JSON object
// addressed with gjson paths ("last_run.exit", "entries.#", "entries.-1").
// The zero value is an empty object. Documents are values; Set and Delete
// return a modified copy.
type Document struct {
	raw string
}

// NewDocument returns an empty document.
func NewDocument() Document {
	return Document{raw: "{}"}
}

// ParseDocument validates raw as a JSON object. Blank input yields an
// empty document.
func ParseDocument(raw string) (Document, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewDocument(), nil
	}
	if !gjson.Valid(raw) {
		return Document{}, fmt.Errorf("metadata is not valid JSON")
	}
	if !gjson.Parse(raw).IsObject() {
		return Document{}, fmt.Errorf("metadata must be a JSON object")
	}
	return Document{raw: raw}, nil
}

// Raw returns the document as JSON text.
func (d Document) Raw() string {
	if d.raw == "" {
		return "{}"
	}
	return d.raw
}

// Get reads the value at path.
func (d Document) Get(path string) gjson.Result {
	return gjson.Get(d.Raw(), path)
}

// Set stores value at path, creating intermediate objects as needed.
func (d Document) Set(path string, value any) (Document, error) {
	raw, err := sjson.Set(d.Raw(), path, value)
	if err != nil {
		return d, fmt.Errorf("set %s: %w", path, err)
	}
	return Document{raw: raw}, nil
}

// SetRaw stores pre-encoded JSON at path.
func (d Document) SetRaw(path, value string) (Document, error) {
	if !gjson.Valid(value) {
		return d, fmt.Errorf("set %s: value is not valid JSON", path)
	}
	raw, err := sjson.SetRaw(d.Raw(), path, value)
	if err != nil {
		return d, fmt.Errorf("set %s: %w", path, err)
	}
	return Document{raw: raw}, nil
}

// Delete removes the value at path. Deleting a missing path is a no-op.
func (d Document) Delete(path string) (Document, error) {
	raw, err := sjson.Delete(d.Raw(), path)
	if err != nil {
		return d, fmt.Errorf("delete %s: %w", path, err)
	}
	return Document{raw: raw}, nil
}

// IsEmpty reports whether the document has no keys.
func (d Document) IsEmpty() bool {
	empty := true
	gjson.Parse(d.Raw()).ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

// Map decodes the document into plain Go values.
func (d Document) Map() map[string]any {
	m, ok := gjson.Parse(d.Raw()).Value().(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// Pretty returns indented JSON for display.
func (d Document) Pretty() string {
	return gjson.Get(d.Raw(), "@pretty").String()
}

// MarshalJSON embeds the document verbatim.
func (d Document) MarshalJSON() ([]byte, error) {
	return []byte(d.Raw()), nil
}

// UnmarshalJSON accepts any JSON object; null yields an empty document.
func (d *Document) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*d = NewDocument()
		return nil
	}
	doc, err := ParseDocument(string(data))
	if err != nil {
		return err
	}
	*d = doc
	return nil
}
