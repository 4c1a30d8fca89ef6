package gauge

import "errors"

var (
	ErrNilState            = errors.New("gauge: state not configured")
	ErrInvalidAmount       = errors.New("gauge: amount must be positive")
	ErrInsufficientBalance = errors.New("gauge: insufficient balance")
	ErrAmountOverflow      = errors.New("gauge: amount exceeds 256 bits")
	ErrUnauthorized        = errors.New("gauge: unauthorized")
	ErrFutureWeight        = errors.New("gauge: weight requested for a future week")
	ErrClockRewind         = errors.New("gauge: timestamp precedes last checkpoint")
	ErrKickNotAllowed      = errors.New("gauge: kick not allowed while boost is active")
	ErrKickNotNeeded       = errors.New("gauge: kick not needed")
	ErrInvalidConfig       = errors.New("gauge: invalid configuration")
	ErrPeriodOutOfRange    = errors.New("gauge: period out of range")
)
