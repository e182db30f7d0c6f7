package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is an opaque key/value bag stored as JSONB
type JSONMap map[string]string

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	data, err := asBytes(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, m)
}

// InlineAddress is delivery address data supplied with the order itself
type InlineAddress struct {
	Line string  `json:"line"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Note string  `json:"note,omitempty"`
}

// Value implements driver.Valuer
func (a InlineAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *InlineAddress) Scan(src interface{}) error {
	data, err := asBytes(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, a)
}

func asBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("unsupported JSON column type %T", src)
}
