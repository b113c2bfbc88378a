package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Breaks carry a pipe-delimited descriptive string mirroring their
// structured fields, kept for legacy display consumers. The format is
// "name|id|date|comments". Name, date and comments must not contain pipes;
// comments is the last field so it absorbs any trailing delimiters.

// BuildBreakDescriptor renders the legacy descriptor for a break.
func BuildBreakDescriptor(name string, id int64, date, comments string) string {
	return strings.Join([]string{name, strconv.FormatInt(id, 10), date, comments}, "|")
}

// ParseBreakDescriptor recovers the structured tuple from a legacy
// descriptor. It is the exact inverse of BuildBreakDescriptor.
func ParseBreakDescriptor(s string) (name string, id int64, date, comments string, err error) {
	parts := strings.SplitN(s, "|", 4)
	if len(parts) != 4 {
		return "", 0, "", "", fmt.Errorf("malformed break descriptor %q: want 4 pipe-delimited fields", s)
	}
	id, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", "", fmt.Errorf("malformed break descriptor %q: classification id: %w", s, err)
	}
	return parts[0], id, parts[2], parts[3], nil
}
