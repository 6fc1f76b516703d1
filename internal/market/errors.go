package market

import "fmt"

// DataUnavailableError is returned when no provider satisfied a required
// capability for a pair within the snapshot's staleness budget.
type DataUnavailableError struct {
	Pair       Pair
	Capability string
	Reason     string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("market: data unavailable for %s capability %s: %s", e.Pair, e.Capability, e.Reason)
}
