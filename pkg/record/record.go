// Package record defines the Vault record entity and the derived statistics
// shape returned by the stats endpoint.
package record

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// JSON keys owned by the store. Client input for these keys is ignored on insert.
const (
	KeyID        = "id"
	KeyName      = "name"
	KeyDate      = "date"
	KeyCreatedAt = "createdAt"
	KeyUpdatedAt = "updatedAt"
)

// reserved keys are never copied into Fields.
var reserved = map[string]bool{
	KeyID:        true,
	"_id":        true,
	"__v":        true,
	KeyName:      true,
	KeyDate:      true,
	KeyCreatedAt: true,
	KeyUpdatedAt: true,
}

// codec encodes record values; it matches encoding/json output byte for byte.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidField is returned when a well-known field has the wrong JSON type.
var ErrInvalidField = errors.New("record: invalid field")

// Record is a single named entry in the vault.
// Fields carries any additional client-supplied attributes verbatim.
type Record struct {
	ID        string
	Name      string
	Date      *Date
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// FromMap builds a new, not yet persisted Record from a client payload.
// Store-owned keys are dropped; the remaining unknown keys land in Fields.
func FromMap(m map[string]any) (Record, error) {
	var r Record
	if v, ok := m[KeyName]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Record{}, fmt.Errorf("%w: name must be a string", ErrInvalidField)
		}
		r.Name = s
	}
	if v, ok := m[KeyDate]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Record{}, fmt.Errorf("%w: date must be a string", ErrInvalidField)
		}
		d, err := ParseDate(s)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		r.Date = &d
	}
	for k, v := range m {
		if reserved[k] {
			continue
		}
		if r.Fields == nil {
			r.Fields = make(map[string]any)
		}
		r.Fields[k] = v
	}
	return r, nil
}

// Field returns the value of a top-level attribute by its JSON key.
func (r Record) Field(key string) (any, bool) {
	switch key {
	case KeyID, "_id":
		return r.ID, true
	case KeyName:
		return r.Name, true
	case KeyDate:
		if r.Date == nil {
			return nil, false
		}
		return r.Date.Time, true
	case KeyCreatedAt:
		return r.CreatedAt, true
	case KeyUpdatedAt:
		return r.UpdatedAt, true
	}
	v, ok := r.Fields[key]
	return v, ok
}

// MarshalJSON renders the record as a flat JSON object: well-known keys first,
// then extra fields in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(k string, v any) error {
		b, err := codec.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", k, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		kb, _ := codec.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}
	if err := write(KeyID, r.ID); err != nil {
		return nil, err
	}
	if err := write(KeyName, r.Name); err != nil {
		return nil, err
	}
	if r.Date != nil {
		if err := write(KeyDate, r.Date); err != nil {
			return nil, err
		}
	}
	if err := write(KeyCreatedAt, r.CreatedAt); err != nil {
		return nil, err
	}
	if err := write(KeyUpdatedAt, r.UpdatedAt); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, r.Fields[k]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a record previously produced by MarshalJSON, including
// the store-owned keys.
func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := codec.Unmarshal(b, &m); err != nil {
		return err
	}
	out, err := FromMap(m)
	if err != nil {
		return err
	}
	if id, ok := m[KeyID].(string); ok {
		out.ID = id
	}
	for key, dst := range map[string]*time.Time{KeyCreatedAt: &out.CreatedAt, KeyUpdatedAt: &out.UpdatedAt} {
		s, ok := m[key].(string)
		if !ok {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
		}
		*dst = t
	}
	*r = out
	return nil
}
