package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrChunkNotFound     = errors.New("chunk not found")
	ErrTemporary         = errors.New("temporary failure")
	ErrConfiguration     = errors.New("configuration error")
	ErrAllBranchesFailed = errors.New("all search branches failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
