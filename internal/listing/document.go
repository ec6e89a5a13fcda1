// Package listing models ABO product metadata documents and the flat record
// extracted from each of them.
package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// LocalizedValue is one entry of a multilingual field such as item_name.
type LocalizedValue struct {
	Value       string `json:"value"`
	LanguageTag string `json:"language_tag"`
}

// LocalizedValues decodes leniently. Input that is not an array decodes to an
// empty list, and entries that are not objects (or carry a non-string value)
// decode to the zero LocalizedValue.
type LocalizedValues []LocalizedValue

func (lv *LocalizedValues) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*lv = nil
		return nil
	}
	out := make(LocalizedValues, 0, len(items))
	for _, raw := range items {
		out = append(out, decodeLocalizedValue(raw))
	}
	*lv = out
	return nil
}

// First returns the value of the first entry, or "" for an empty list.
// There is no locale preference: entry order in the source wins.
func (lv LocalizedValues) First() string {
	if len(lv) == 0 {
		return ""
	}
	return lv[0].Value
}

// ExtractText applies First to a raw JSON value. It never fails.
func ExtractText(raw []byte) string {
	var lv LocalizedValues
	_ = lv.UnmarshalJSON(raw)
	return lv.First()
}

func decodeLocalizedValue(raw json.RawMessage) LocalizedValue {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return LocalizedValue{}
	}
	return LocalizedValue{
		Value:       stringOrEmpty(obj["value"]),
		LanguageTag: stringOrEmpty(obj["language_tag"]),
	}
}

func stringOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Document is the subset of a listing file the extractor reads. Absent and
// null scalar fields stay nil and read back as "".
type Document struct {
	ItemID      *string
	ItemName    LocalizedValues
	BulletPoint LocalizedValues
	MainImageID *string
}

func (d Document) ProductID() string   { return deref(d.ItemID) }
func (d Document) ImageID() string     { return deref(d.MainImageID) }
func (d Document) Title() string       { return d.ItemName.First() }
func (d Document) Description() string { return d.BulletPoint.First() }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var nullDocument = []byte("null")

// Decode parses one metadata file. Field names match exactly; keys that differ
// only in case are ignored. Failures are *DocumentError values of kind
// ParseError (bad syntax, invalid UTF-8, not an object) or FieldError (a
// scalar field holding a non-string value).
func Decode(data []byte) (Document, error) {
	if !utf8.Valid(data) {
		return Document{}, &DocumentError{Kind: ParseError, Err: errors.New("invalid UTF-8 in document")}
	}
	if bytes.Equal(bytes.TrimSpace(data), nullDocument) {
		return Document{}, &DocumentError{Kind: ParseError, Err: errors.New("document is null, want a JSON object")}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Document{}, classifyDecodeError(err)
	}

	var doc Document
	var err error
	if doc.ItemID, err = optionalString(fields, "item_id"); err != nil {
		return Document{}, err
	}
	if doc.MainImageID, err = optionalString(fields, "main_image_id"); err != nil {
		return Document{}, err
	}
	_ = doc.ItemName.UnmarshalJSON(fields["item_name"])
	_ = doc.BulletPoint.UnmarshalJSON(fields["bullet_point"])
	return doc, nil
}

func optionalString(fields map[string]json.RawMessage, key string) (*string, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &DocumentError{Kind: FieldError, Field: key, Err: err}
	}
	return s, nil
}

func classifyDecodeError(err error) *DocumentError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DocumentError{Kind: ParseError, Err: fmt.Errorf("document is a JSON %s, want an object", typeErr.Value)}
	}
	return &DocumentError{Kind: ParseError, Err: err}
}
