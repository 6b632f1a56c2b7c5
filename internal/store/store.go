// Package store implements the analysis and feedback repositories on db.DB.
package store

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/docuflow/intake-service/internal/db"
)

// historyLimit caps how many feedback rows one learning query reads.
const historyLimit = 500

func encodeJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

// decodeJSON accepts a jsonb value already decoded by pgx or the raw text
// stored by SQLite.
func decodeJSON(v any, dst any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return json.Unmarshal([]byte(val), dst)
	case []byte:
		if len(val) == 0 {
			return nil
		}
		return json.Unmarshal(val, dst)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func asString(v any) string {
	switch val := db.SerializeValue(v).(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}

func asInt(v any) int {
	return int(asFloat(v))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func asTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val.UTC()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
