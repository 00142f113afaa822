package department

import (
	"context"
	"fmt"
)

// Key identifies one of the fixed specialized support departments.
type Key string

const (
	Sports      Key = "sports"
	Electronics Key = "electronics"
	Travel      Key = "travel"
)

// One live mapping from upstream function name to department. Function names
// not present here are ignored by the orchestrator: no dispatch, no error.
var functionNames = map[string]Key{
	"call_sports_dept":      Sports,
	"call_electronics_dept": Electronics,
	"call_travel_dept":      Travel,
}

// KeyForFunction resolves an upstream tool/function name to a department key.
func KeyForFunction(name string) (Key, bool) {
	key, ok := functionNames[name]
	return key, ok
}

// Keys returns all known department keys.
func Keys() []Key {
	return []Key{Sports, Electronics, Travel}
}

// FunctionName returns the tool/function name advertised upstream for key.
func FunctionName(key Key) string {
	for name, k := range functionNames {
		if k == key {
			return name
		}
	}
	return ""
}

// DispatcherPort performs one synchronous call to a department backend and
// returns the completion text to splice into the outgoing stream.
type DispatcherPort interface {
	Dispatch(ctx context.Context, key Key, customerQuery, threadID string) (string, error)
}

// UnavailableError reports a failed department call. It is recoverable: the
// orchestrator converts it into an apology chunk and keeps streaming.
type UnavailableError struct {
	Department Key
	Status     int
	StatusText string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("department %s unavailable: status %d %s", e.Department, e.Status, e.StatusText)
}
