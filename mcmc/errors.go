package mcmc

import "errors"

var (
	ErrPrior           = errors.New("invalid branch-length prior")
	ErrGenerations     = errors.New("the number of generations and the print and sample frequencies must be positive")
	ErrNoMoves         = errors.New("the chain has no move with positive weight")
	ErrImpossibleStart = errors.New("starting state has zero likelihood")
)
