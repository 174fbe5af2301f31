package index

import "errors"

// ErrInvalidHeight is returned by NewSkipList for a non-positive max tower
// height.
var ErrInvalidHeight = errors.New("index: max height must be positive")
