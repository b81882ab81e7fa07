package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrAggregationExhausted = errors.New("no price source available")
	ErrEventUnavailable     = errors.New("no event data available")
	ErrEventNotFinal        = errors.New("event not final")
	ErrNoOutcomeMatch       = errors.New("no outcome matches observed value")
	ErrDecode               = errors.New("malformed provider response")
	ErrProviderDisabled     = errors.New("provider disabled")
)
