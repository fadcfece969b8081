package material

import "errors"

var ErrInvalidKey = errors.New("invalid feedback key")
