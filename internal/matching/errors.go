package matching

import "errors"

// ErrOverflow is the one matcher-fatal error: any internal numeric value
// that cannot be represented in 256 bits aborts the round with no matches
// produced.
var ErrOverflow = errors.New("matching: numeric overflow during clearing")
