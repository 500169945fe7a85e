package stac

import (
	"encoding/json"
	"strconv"
)

// Number returns the numeric value of an item property. Values decoded from
// JSON arrive as float64; integer, json.Number and numeric string values are
// accepted too. The second return value is false when the property is missing
// or not numeric.
func Number(item *Item, key string) (float64, bool) {
	if item == nil || item.Properties == nil {
		return 0, false
	}
	switch v := item.Properties[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
