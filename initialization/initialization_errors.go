package initialization

import (
	"errors"
)

var (
	ErrAlreadyInitializing = errors.New("already initializing")
	ErrRoundMissing        = errors.New("`round` is required")
	ErrPoolTooSmall        = errors.New("proof pool does not fit in memory")
)
