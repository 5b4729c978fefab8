package connection

import "errors"

var errNoCredential = errors.New("connection: no credential")
