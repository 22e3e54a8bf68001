package repos

import (
	"encoding/json"
)

// mustJSON serializes list columns the same way the gorm json serializer
// does, for updates issued through column maps.
func mustJSON(v []string) string {
	if v == nil {
		v = []string{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
