package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// scanJSON decodes a JSONB column value into dst. NULL and empty values leave dst untouched.
func scanJSON(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}

	// Handle different types that pgx might return for JSONB
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}

	if len(bytes) == 0 {
		return nil
	}

	return json.Unmarshal(bytes, dst)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
