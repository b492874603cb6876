package transform

import "errors"

// ErrNoUnderlyingData aborts stage 3 before any write: without the
// underlying's traded range the strike universe cannot be bounded.
var ErrNoUnderlyingData = errors.New("no underlying marks for date")

// ErrNoSessionWindow aborts stage 2 before any write: without the
// session window, out-of-hours ticks would become permanent marks that
// no re-run can undo. Staging is preserved for a retry.
var ErrNoSessionWindow = errors.New("no session window for date")
