package network

import (
	"sort"
	"strconv"

	"yfinance-observer/src/models"

	"github.com/segmentio/encoding/json"
)

// Document wraps a decoded JSON value. Lookups on missing keys yield an
// empty Document instead of failing, so projectors can chain Get calls.
type Document struct {
	value   interface{}
	present bool
}

func NewDocument(v interface{}) *Document {
	return &Document{value: v, present: true}
}

var missing = &Document{}

// ParseDocument decodes a JSON body.
func ParseDocument(data []byte) (*Document, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return NewDocument(v), nil
}

// -----------------------------------------------------------------------------

// Get walks object keys in order.
func (d *Document) Get(keys ...string) *Document {
	cur := d
	for _, k := range keys {
		if cur == nil || !cur.present {
			return missing
		}
		obj, ok := cur.value.(map[string]interface{})
		if !ok {
			return missing
		}
		v, ok := obj[k]
		if !ok {
			return missing
		}
		cur = NewDocument(v)
	}
	if cur == nil {
		return missing
	}
	return cur
}

func (d *Document) Index(i int) *Document {
	if d == nil {
		return missing
	}
	arr, ok := d.value.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return missing
	}
	return NewDocument(arr[i])
}

// -----------------------------------------------------------------------------

func (d *Document) Exists() bool {
	return d != nil && d.present
}

// IsNull is true for both a JSON null and a missing value.
func (d *Document) IsNull() bool {
	return d == nil || !d.present || d.value == nil
}

func (d *Document) Raw() interface{} {
	if d == nil {
		return nil
	}
	return d.value
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	switch v := d.value.(type) {
	case []interface{}:
		return len(v)
	case map[string]interface{}:
		return len(v)
	}
	return 0
}

// -----------------------------------------------------------------------------

// String returns strings as-is and renders numbers and booleans; anything
// else is "".
func (d *Document) String() string {
	if d == nil {
		return ""
	}
	switch v := d.value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (d *Document) Float() (float64, bool) {
	if d == nil {
		return 0, false
	}
	switch v := d.value.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func (d *Document) Int() (int64, bool) {
	f, ok := d.Float()
	return int64(f), ok
}

func (d *Document) Bool() bool {
	if d == nil {
		return false
	}
	switch v := d.value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (d *Document) Array() []*Document {
	if d == nil {
		return nil
	}
	arr, ok := d.value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]*Document, len(arr))
	for i, v := range arr {
		out[i] = NewDocument(v)
	}
	return out
}

// Keys returns object keys sorted.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	obj, ok := d.value.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------

// RawFloat reads either a plain number or the "raw" member of a formatted
// value.
func (d *Document) RawFloat() (float64, bool) {
	if f, ok := d.Float(); ok {
		return f, true
	}
	return d.Get("raw").Float()
}

func (d *Document) Formatted() models.MFormattedValue {
	raw, _ := d.RawFloat()
	return models.MFormattedValue{
		Raw:     raw,
		Fmt:     d.Get("fmt").String(),
		LongFmt: d.Get("longFmt").String(),
	}
}

// -----------------------------------------------------------------------------

// MarshalJSON re-encodes the wrapped value.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.value)
}
