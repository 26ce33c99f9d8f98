package tree

import "errors"

var (
	ErrNewick        = errors.New("malformed newick string")
	ErrEmptyTree     = errors.New("the tree has no nodes")
	ErrDuplicateTip  = errors.New("tip names must be unique")
	ErrNodeIndex     = errors.New("node index out of range")
	ErrNegativeBrlen = errors.New("branch lengths must be non-negative")
)
