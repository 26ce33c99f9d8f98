package character

import "errors"

var (
	ErrSymbol                 = errors.New("unrecognised character symbol")
	ErrAlphabetSize           = errors.New("unsupported number of states")
	ErrSequenceLength         = errors.New("sequence length does not match the matrix")
	ErrDuplicateTaxon         = errors.New("taxon already present in the matrix")
	ErrUnknownTaxon           = errors.New("taxon not present in the matrix")
	ErrSiteIndex              = errors.New("character index out of range")
	ErrNotEnoughIncludedSites = errors.New("the character matrix does not have enough included characters")
	ErrTooManyIncludedSites   = errors.New("the character matrix has too many included characters")
	ErrFormat                 = errors.New("malformed matrix file")
)
