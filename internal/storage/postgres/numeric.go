package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// numeric formats a uint64 for a NUMERIC(20,0) column parameter.
// Values are passed as text and cast server-side so the full uint64 range
// is representable.
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// parseNumeric parses a NUMERIC(20,0) column selected as text.
func parseNumeric(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v, nil
}
