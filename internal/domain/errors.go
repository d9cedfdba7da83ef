package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrSigningFailed       = errors.New("signing failed")
	ErrLockHeld            = errors.New("lock already held")
	ErrExpired             = errors.New("expired")
	ErrRiskLimit           = errors.New("daily loss limit reached")
	ErrNoQuotes            = errors.New("no quotes available")
	ErrStaleSpread         = errors.New("spread no longer profitable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTxFailed            = errors.New("transaction failed")
	ErrTxTimeout           = errors.New("transaction confirmation timeout")
	ErrBundleFailed        = errors.New("bundle failed")
	ErrBundleTimeout       = errors.New("bundle confirmation timeout")
)
