package models

import "errors"

// ErrCrossTenantReference is returned when an operation references a row
// belonging to a different church. Always fatal to the operation.
var ErrCrossTenantReference = errors.New("reference crosses church boundary")
