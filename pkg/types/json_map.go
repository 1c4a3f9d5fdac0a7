package types

import (
	"encoding/json"
	"fmt"
)

// JSONMap is a JSON object stored in a jsonb column. Models tag it with
// serializer:json so gorm handles encoding.
type JSONMap map[string]any

// ToJSONMap flattens v through its JSON form. nil stays nil; values that do
// not encode to an object are rejected.
func ToJSONMap(v any) (JSONMap, error) {
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case JSONMap:
		return typed, nil
	case map[string]any:
		return JSONMap(typed), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out JSONMap
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%T is not a json object: %w", v, err)
	}
	return out, nil
}
