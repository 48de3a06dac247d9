package domain

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidType     = errors.New("invalid event type")
	ErrInvalidTime     = errors.New("invalid timestamp")
	ErrInvalidWindow   = errors.New("invalid window")
	ErrInvalidInterval = errors.New("invalid interval")
)
