package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vlodia/loam/schema"
)

// dateLayouts are tried in order when a date column arrives as text
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// convertValue converts a raw driver value into the in-memory
// representation for the column type. Conversion is type-directed: the
// column type decides the target, never the raw value's shape. A nil raw
// value always maps to nil.
func convertValue(col *schema.Column, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}

	switch col.Type {
	case schema.TypeString, schema.TypeText:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
		return fmt.Sprintf("%v", raw), nil

	case schema.TypeNumber:
		return convertNumber(col, raw)

	case schema.TypeBoolean:
		return convertBool(col, raw)

	case schema.TypeDate:
		return convertDate(col, raw)

	case schema.TypeJSON:
		return convertJSON(col, raw)

	case schema.TypeUUID:
		return convertUUID(col, raw)

	case schema.TypeBlob:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, hydrateErr(col, raw)

	default:
		return nil, fmt.Errorf("column %s: unknown column type %d", col.Name, col.Type)
	}
}

func convertNumber(col *schema.Column, raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case []byte:
		return parseNumber(col, string(v))
	case string:
		return parseNumber(col, v)
	}
	return nil, hydrateErr(col, raw)
}

func parseNumber(col *schema.Column, s string) (interface{}, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return nil, hydrateErr(col, s)
}

func convertBool(col *schema.Column, raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case []byte:
		return parseBool(col, string(v))
	case string:
		return parseBool(col, v)
	}
	return nil, hydrateErr(col, raw)
}

func parseBool(col *schema.Column, s string) (interface{}, error) {
	switch strings.ToLower(s) {
	case "true", "t", "1", "yes":
		return true, nil
	case "false", "f", "0", "no":
		return false, nil
	}
	return nil, hydrateErr(col, s)
}

func convertDate(col *schema.Column, raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case []byte:
		return parseDate(col, string(v))
	case string:
		return parseDate(col, v)
	}
	return nil, hydrateErr(col, raw)
}

func parseDate(col *schema.Column, s string) (interface{}, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, hydrateErr(col, s)
}

func convertJSON(col *schema.Column, raw interface{}) (interface{}, error) {
	var payload []byte
	switch v := raw.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	case map[string]interface{}, []interface{}:
		// Already decoded by the driver.
		return v, nil
	default:
		return nil, hydrateErr(col, raw)
	}

	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("column %s: invalid json payload: %w", col.Name, err)
	}
	return decoded, nil
}

func convertUUID(col *schema.Column, raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			if err == nil {
				return id, nil
			}
		}
		id, err := uuid.Parse(string(v))
		if err != nil {
			return nil, hydrateErr(col, raw)
		}
		return id, nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, hydrateErr(col, raw)
		}
		return id, nil
	}
	return nil, hydrateErr(col, raw)
}

func hydrateErr(col *schema.Column, raw interface{}) error {
	return fmt.Errorf("column %s: cannot hydrate %T as %s", col.Name, raw, col.Type)
}

// keyString normalizes a primary-key value for identity-map lookup so
// that, for example, an int64 from the driver and an int from the caller
// address the same entry
func keyString(v interface{}) string {
	switch k := v.(type) {
	case string:
		return k
	case int:
		return strconv.FormatInt(int64(k), 10)
	case int32:
		return strconv.FormatInt(int64(k), 10)
	case int64:
		return strconv.FormatInt(k, 10)
	case uint:
		return strconv.FormatUint(uint64(k), 10)
	case uint64:
		return strconv.FormatUint(k, 10)
	case uuid.UUID:
		return k.String()
	case []byte:
		return string(k)
	default:
		return fmt.Sprintf("%v", k)
	}
}
