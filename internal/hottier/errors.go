package hottier

import "errors"

// ErrClosed is returned by any Store method called after Close.
var ErrClosed = errors.New("hottier: store is closed")
