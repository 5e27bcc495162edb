package common

import "errors"

var ErrNotFound = errors.New("not found")

// ErrAlreadyResolved is returned when resolving an approval ticket that has
// already left the pending state. Callers treat this as the idempotent-resume
// signal rather than a failure.
var ErrAlreadyResolved = errors.New("ticket already resolved")
