package generator

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/okian/autodist/internal/domain/model"
)

// stringField returns the first non-empty scalar under keys, rendered as text.
func stringField(p map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := scalarString(p[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

func numberField(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func itemsField(p model.Payload) []map[string]any {
	raw, ok := p["items"].([]any)
	if !ok {
		if typed, ok := p["items"].([]map[string]any); ok {
			return typed
		}
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			items = append(items, m)
		} else {
			items = append(items, map[string]any{})
		}
	}
	return items
}

// quantity reads an item's quantity. Missing, invalid or non-positive
// quantities count as one device; anything above maxDevicesPerEvent is
// clamped to it.
func quantity(item map[string]any) int {
	q := numberField(item, "quantity")
	if q <= 0 || math.IsNaN(q) {
		return 1
	}
	if q >= maxDevicesPerEvent {
		return maxDevicesPerEvent
	}
	return int(q)
}

// scalars copies every scalar payload value into a string map.
func scalars(p model.Payload) map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		if s, ok := scalarString(v); ok {
			out[k] = s
		}
	}
	return out
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}
