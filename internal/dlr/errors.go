package dlr

import "errors"

var errMissingKey = errors.New("dlr: smsc and timestamp are required")
