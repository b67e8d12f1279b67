// Package enums holds the string enums persisted as Postgres enum types and
// exchanged on the wire.
package enums

import (
	"fmt"
	"slices"
)

// parseEnum returns value as T when it is one of valid.
func parseEnum[T ~string](valid []T, value, kind string) (T, error) {
	if v := T(value); slices.Contains(valid, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
