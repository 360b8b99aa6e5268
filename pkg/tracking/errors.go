package tracking

import "errors"

// ErrIdentityConflict means a record's key and ICAO24 disagree.
// The store keys records by normalized ICAO24, so this is not expected to occur.
var ErrIdentityConflict = errors.New("identity conflict")
