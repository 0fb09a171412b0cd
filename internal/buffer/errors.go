package buffer

import "errors"

// ErrBadInput is returned by Push when the caller's payload is missing an
// identity field the buffer requires to assign an id. It never affects
// buffer state.
var ErrBadInput = errors.New("buffer: bad input")
