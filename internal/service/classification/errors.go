package classification

import (
	"errors"

	"github.com/ignite/intake-extractor/internal/domain"
)

// Sentinel errors for the classification service layer.
var (
	ErrUnknownField = errors.New("unknown field")
	ErrNotFound     = domain.ErrNotFound
)
