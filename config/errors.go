package config

import "errors"

var (
	ErrInvalid  = errors.New("invalid configuration")
	ErrAlphabet = errors.New("unknown alphabet")
)
