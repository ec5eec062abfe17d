// Package reputation classifies client IP addresses as risky (proxy, hosting,
// attack source) before an account is created from them.
package reputation

import (
	"context"
	"errors"
)

// Sentinel errors for lookup failures.
var (
	ErrLookupUnavailable = errors.New("reputation lookup unavailable")
	ErrLookupFailed      = errors.New("reputation lookup failed")
)

// Classifier decides whether an IP address should be treated as risky.
// Implementations must be safe for concurrent use.
type Classifier interface {
	IsRiskyIP(ctx context.Context, ip string) (bool, error)
}
