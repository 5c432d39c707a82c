package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StringList stores an optional list of strings as a JSON array.
//
// A nil StringList means "unrestricted" for allow-list columns; an empty
// non-nil list means "nothing allowed". The distinction is preserved across
// the database round trip by serializing nil as SQL NULL.
type StringList []string

// Value implements driver.Valuer for database serialization.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	data, errMarshal := json.Marshal([]string(l))
	if errMarshal != nil {
		return nil, fmt.Errorf("string list marshal: %w", errMarshal)
	}
	return data, nil
}

// Scan implements sql.Scanner for database deserialization.
func (l *StringList) Scan(value any) error {
	if l == nil {
		return fmt.Errorf("string list scan: nil receiver")
	}
	if value == nil {
		*l = nil
		return nil
	}
	switch typed := value.(type) {
	case []byte:
		return parseStringListFromBytes(l, typed)
	case string:
		return parseStringListFromBytes(l, []byte(typed))
	default:
		return fmt.Errorf("string list scan: unsupported type %T", value)
	}
}

func parseStringListFromBytes(target *StringList, data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*target = nil
		return nil
	}
	var list []string
	if errUnmarshal := json.Unmarshal(data, &list); errUnmarshal != nil {
		return fmt.Errorf("string list scan: invalid json")
	}
	*target = StringList(list)
	return nil
}

// Contains reports whether the list contains the given value.
func (l StringList) Contains(value string) bool {
	for _, item := range l {
		if item == value {
			return true
		}
	}
	return false
}

// Uint64List stores an optional list of numeric IDs as a JSON array.
// Like StringList, nil means "unrestricted" and survives the round trip.
type Uint64List []uint64

// Value implements driver.Valuer for database serialization.
func (l Uint64List) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	data, errMarshal := json.Marshal([]uint64(l))
	if errMarshal != nil {
		return nil, fmt.Errorf("id list marshal: %w", errMarshal)
	}
	return data, nil
}

// Scan implements sql.Scanner for database deserialization.
func (l *Uint64List) Scan(value any) error {
	if l == nil {
		return fmt.Errorf("id list scan: nil receiver")
	}
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch typed := value.(type) {
	case []byte:
		data = typed
	case string:
		data = []byte(typed)
	default:
		return fmt.Errorf("id list scan: unsupported type %T", value)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*l = nil
		return nil
	}
	var list []uint64
	if errUnmarshal := json.Unmarshal(data, &list); errUnmarshal != nil {
		return fmt.Errorf("id list scan: invalid json")
	}
	*l = Uint64List(list)
	return nil
}

// Contains reports whether the list contains the given ID.
func (l Uint64List) Contains(id uint64) bool {
	for _, item := range l {
		if item == id {
			return true
		}
	}
	return false
}

// CapabilityMap stores per-capability flags as a JSON object.
type CapabilityMap map[string]bool

// Value implements driver.Valuer for database serialization.
func (m CapabilityMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, errMarshal := json.Marshal(map[string]bool(m))
	if errMarshal != nil {
		return nil, fmt.Errorf("capability map marshal: %w", errMarshal)
	}
	return data, nil
}

// Scan implements sql.Scanner for database deserialization.
func (m *CapabilityMap) Scan(value any) error {
	if m == nil {
		return fmt.Errorf("capability map scan: nil receiver")
	}
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch typed := value.(type) {
	case []byte:
		data = typed
	case string:
		data = []byte(typed)
	default:
		return fmt.Errorf("capability map scan: unsupported type %T", value)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*m = nil
		return nil
	}
	var parsed map[string]bool
	if errUnmarshal := json.Unmarshal(data, &parsed); errUnmarshal != nil {
		return fmt.Errorf("capability map scan: invalid json")
	}
	*m = CapabilityMap(parsed)
	return nil
}
