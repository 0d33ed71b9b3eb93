package domain

import "errors"

var ErrParcelNotFound = errors.New("parcel_not_found")
