package user

import "errors"

var ErrEmailConflict = errors.New("email already registered")
