package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("insufficient data")
	ErrDailyLossLimit   = errors.New("daily loss limit reached")
	ErrQuarantined      = errors.New("symbol in quarantine")
	ErrPositionExists   = errors.New("position already open")
	ErrPositionLimit    = errors.New("active position limit reached")
	ErrHighCorrelation  = errors.New("correlation limit exceeded")
	ErrInvalidIntent    = errors.New("trade rejected by risk validation")
	ErrZeroQuantity     = errors.New("quantity rounds to zero")
	ErrAdvisoryInvalid  = errors.New("advisory response rejected")
	ErrAdvisoryDisabled = errors.New("advisory not configured")
)
