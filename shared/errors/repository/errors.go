package repository

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrInvalidRecord       = errors.New("invalid stored record")
	ErrEmptySymbol         = errors.New("ticker must have a symbol")
	ErrFillAlreadyRecorded = errors.New("fill already recorded")
)
