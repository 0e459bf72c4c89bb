package handlers

import (
	"errors"
	"strconv"
)

var errInvalidID = errors.New("must be a positive integer")

// parsePositiveID parses a path segment holding a BIGINT identity.
func parsePositiveID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}

	return id, nil
}
