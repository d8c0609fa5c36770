package cli

import "errors"

// Error variables for command argument validation.
var (
	ErrKeyRequired   = errors.New("key required")
	ErrFileRequired  = errors.New("file required")
	ErrTokenRequired = errors.New("token required (use -t or -s)")
	ErrTokenConflict = errors.New("-t and -s cannot be combined")
	ErrNotFound      = errors.New("not found")
	ErrNoPayload     = errors.New("no payload (pass a file or pipe stdin)")
	ErrTooManyArgs   = errors.New("too many arguments")
	ErrNotUTF8       = errors.New("key and token must be valid UTF-8")
)
