package docql

import (
	"encoding/json"

	"github.com/nqd/flat"
	"github.com/spf13/cast"
	"github.com/stratumdb/docql/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Document is a JSON document as returned by the store
type Document struct {
	result gjson.Result
}

// UnmarshalJSON satisfies the json Unmarshaler interface
func (d *Document) UnmarshalJSON(bytes []byte) error {
	doc, err := NewDocumentFromBytes(bytes)
	if err != nil {
		return err
	}
	*d = *doc
	return nil
}

// MarshalJSON satisfies the json Marshaler interface
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.Bytes(), nil
}

// NewDocument creates a new empty json document
func NewDocument() *Document {
	return &Document{result: gjson.Parse("{}")}
}

// NewDocumentFromBytes creates a new document from the given json bytes
func NewDocumentFromBytes(bits []byte) (*Document, error) {
	if !gjson.ValidBytes(bits) {
		return nil, errors.New(errors.Validation, "invalid json: %s", string(bits))
	}
	d := &Document{result: gjson.ParseBytes(bits)}
	if !d.Valid() {
		return nil, errors.New(errors.Validation, "invalid document")
	}
	return d, nil
}

// NewDocumentFrom creates a new document from the given value - the value must be json compatible
func NewDocumentFrom(value any) (*Document, error) {
	bits, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New(errors.Validation, "failed to json encode value: %#v", value)
	}
	return NewDocumentFromBytes(bits)
}

// Valid returns whether the document is valid
func (d *Document) Valid() bool {
	return gjson.ValidBytes(d.Bytes()) && !d.result.IsArray()
}

// String returns the document as a json string
func (d *Document) String() string {
	return d.result.Raw
}

// Bytes returns the document as json bytes
func (d *Document) Bytes() []byte {
	return []byte(d.result.Raw)
}

// Value returns the document as a map
func (d *Document) Value() map[string]any {
	return cast.ToStringMap(d.result.Value())
}

// Clone allocates a new document with identical values
func (d *Document) Clone() *Document {
	return &Document{result: gjson.Parse(d.result.Raw)}
}

// ID returns the documents id field
func (d *Document) ID() string {
	return d.GetString("id")
}

// Get gets a field on the document. Dot notation is supported.
func (d *Document) Get(field string) any {
	return d.result.Get(field).Value()
}

// GetString gets a string field value on the document
func (d *Document) GetString(field string) string {
	return d.result.Get(field).String()
}

// GetFloat gets a float field value on the document
func (d *Document) GetFloat(field string) float64 {
	return cast.ToFloat64(d.Get(field))
}

// GetBool gets a bool field value on the document
func (d *Document) GetBool(field string) bool {
	return cast.ToBool(d.Get(field))
}

// Exists returns whether the field is present on the document
func (d *Document) Exists(field string) bool {
	return d.result.Get(field).Exists()
}

// Set sets a field on the document. Dot notation is supported.
func (d *Document) Set(field string, val any) error {
	return d.SetAll(map[string]any{field: val})
}

func (d *Document) set(field string, val any) error {
	raw, err := sjson.Set(d.result.Raw, field, val)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to set field: %s", field)
	}
	if !gjson.Valid(raw) {
		return errors.New(errors.Validation, "invalid document")
	}
	d.result = gjson.Parse(raw)
	return nil
}

// SetAll sets all fields on the document. Dot notation is supported.
func (d *Document) SetAll(values map[string]any) error {
	for k, v := range values {
		if err := d.set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Del deletes fields from the document
func (d *Document) Del(fields ...string) error {
	for _, field := range fields {
		raw, err := sjson.Delete(d.result.Raw, field)
		if err != nil {
			return errors.Wrap(err, errors.Validation, "failed to delete field: %s", field)
		}
		d.result = gjson.Parse(raw)
	}
	return nil
}

// MergePatch merges a patch onto the document without overwriting untouched
// fields. Nested maps in the patch merge field by field.
func (d *Document) MergePatch(patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	flattened, err := flat.Flatten(patch, nil)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to flatten patch")
	}
	return d.SetAll(flattened)
}
