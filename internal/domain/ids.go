package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EntityID identifies a folder or tag. IDs are caller-supplied and stored as text,
// but clients send them both as strings and as numbers, so decoding accepts either.
type EntityID string

// UnmarshalJSON accepts "10" and 10 alike.
func (e *EntityID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = EntityID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("entity id must be a string or number: %w", err)
	}
	*e = EntityID(n.String())
	return nil
}

// String returns the raw identifier.
func (e EntityID) String() string { return string(e) }

// IsZero reports whether the id is empty or the "no folder" sentinel 0.
func (e EntityID) IsZero() bool { return e == "" || e == "0" }

// IDPtr returns a pointer to id, or nil when id is zero.
func IDPtr(id EntityID) *EntityID {
	if id.IsZero() {
		return nil
	}
	return &id
}

// Nullable distinguishes an absent JSON key from an explicit null.
// Set is true whenever the key was present; Valid is false for null.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Some returns a present, non-null value.
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Valid: true, Value: v}
}

// Null returns a present null value.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// Ptr returns the value as a pointer, nil when null or absent.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// UnmarshalJSON marks the value as set and decodes null as invalid.
func (n *Nullable[T]) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.Valid = false
		var zero T
		n.Value = zero
		return nil
	}
	if err := json.Unmarshal(b, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// MarshalJSON encodes null when the value is not valid.
func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Flag is a boolean that also decodes from 0/1 and "true"/"false" strings.
type Flag bool

// UnmarshalJSON accepts true, false, 0, 1 and their string forms.
func (f *Flag) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid flag %q", s)
	}
	*f = Flag(v)
	return nil
}
