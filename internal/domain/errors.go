package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAccountExists = errors.New("account already exists")
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrInvalidEvent  = errors.New("invalid event envelope")
)
