package entities

import "errors"

var ErrStoreEntityNotFound = errors.New("store entity not found")
