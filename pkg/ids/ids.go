package ids

import "strings"

// Short compacts an identifier for log lines and container names.
// UUIDs collapse to their first 8 hex characters; anything already short
// passes through unchanged.
//
// Example:
//   - Input: "a3f8e2b1-4c5d-6e7f-8a9b-0c1d2e3f4a5b"
//   - Output: "a3f8e2b1"
func Short(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) <= 8 {
		return compact
	}
	return compact[:8]
}
