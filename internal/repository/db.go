package repository

import (
	"encoding/json"
	"fmt"
)

type scanner interface {
	Scan(dest ...any) error
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshalMetadata: %w", err)
	}
	return raw, nil
}

func unmarshalMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshalMetadata: %w", err)
	}
	return m, nil
}
