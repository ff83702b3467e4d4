package iam

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Serializer encodes property maps for the cache and the wire.
type Serializer interface {
	Serialize(m Map) (string, error)
	Deserialize(data string) (Map, error)
}

// JSONSerializer is the default Serializer. Numbers are decoded as
// json.Number so integer paging fields survive a round trip exactly.
type JSONSerializer struct{}

// NewJSONSerializer creates a JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize encodes m as JSON.
func (s *JSONSerializer) Serialize(m Map) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to serialize properties: %w", err)
	}

	return string(data), nil
}

// Deserialize decodes a JSON object. An empty string yields a nil map.
func (s *JSONSerializer) Deserialize(data string) (Map, error) {
	if data == "" {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(data)))
	decoder.UseNumber()

	var m Map

	err := decoder.Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize properties: %w", err)
	}

	return m, nil
}
