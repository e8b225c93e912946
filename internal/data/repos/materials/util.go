package materials

import (
	"encoding/json"

	"gorm.io/datatypes"
)

func appendJSONLines(existing datatypes.JSON, lines []string) (datatypes.JSON, error) {
	var current []string
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &current); err != nil {
			current = nil
		}
	}
	current = append(current, lines...)
	// Keep the tail; ingest logs are diagnostics, not an audit trail.
	const maxLines = 500
	if len(current) > maxLines {
		current = current[len(current)-maxLines:]
	}
	b, err := json.Marshal(current)
	if err != nil {
		return existing, err
	}
	return datatypes.JSON(b), nil
}
