package trace

import "errors"

var ErrNoRun = errors.New("no run has been opened in the trace store")
