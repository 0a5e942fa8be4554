package models

import "errors"

// ErrDuplicateToken reports a meeting insert that collided with an existing
// token. The store's uniqueness constraint is the authority; generators only
// pre-check.
var ErrDuplicateToken = errors.New("duplicate meeting token")
