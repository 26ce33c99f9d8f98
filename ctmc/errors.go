package ctmc

import "errors"

var (
	ErrNumStates      = errors.New("unsupported number of states")
	ErrExchangeRates  = errors.New("exchangeability rates must be positive and match the number of state pairs")
	ErrFrequencies    = errors.New("stationary frequencies must be positive and match the number of states")
	ErrDecomposition  = errors.New("eigen decomposition of the rate matrix failed")
	ErrGammaShape     = errors.New("gamma shape must be positive")
	ErrGammaNumCats   = errors.New("number of gamma categories must be positive")
	ErrNotInitialized = errors.New("rate matrix has not been decomposed")
)
