package assetmap

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

var requiredFields = []string{"url", "width", "height"}

// ValidateFile checks a written map; see Validate.
func ValidateFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read asset map: %w", err)
	}
	return Validate(data)
}

// Validate checks raw map JSON: the top level must be an object whose keys
// are images/<non-empty> and whose values carry url, width and height.
// Problems are returned as messages; a JSON syntax error is an error.
func Validate(data []byte) ([]string, error) {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse asset map: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []string
	for _, k := range keys {
		if !strings.HasPrefix(k, keyPrefix) || len(k) == len(keyPrefix) {
			errs = append(errs, fmt.Sprintf("key %q: want images/<id>", k))
		}
		for _, f := range requiredFields {
			v, ok := raw[k][f]
			if !ok || string(v) == "null" {
				errs = append(errs, fmt.Sprintf("key %q: missing %s", k, f))
			}
		}
		if v, ok := raw[k]["url"]; ok {
			var url string
			if json.Unmarshal(v, &url) == nil && url == "" {
				errs = append(errs, fmt.Sprintf("key %q: empty url", k))
			}
		}
	}
	return errs, nil
}
