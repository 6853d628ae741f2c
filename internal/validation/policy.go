package validation

import (
	"bytes"
	"context"
	"fmt"

	"tranchebook/pkg/domain"
)

// DestinationPolicy decides which tranche a transfer's amount lands in on the
// receiving side. Policies are pluggable per instrument; the engine never
// hard-codes one.
type DestinationPolicy func(ctx context.Context, req Request) (domain.Tranche, error)

// SameAsSource keeps the amount in the tranche it came from. This is the
// default policy.
func SameAsSource(_ context.Context, req Request) (domain.Tranche, error) {
	return req.Tranche, nil
}

// FixedDestination routes every transfer into one target tranche, as used by
// instruments that demote transferred holdings into a restricted class.
func FixedDestination(target domain.Tranche) DestinationPolicy {
	return func(context.Context, Request) (domain.Tranche, error) {
		return target, nil
	}
}

var destPrefix = []byte("dest:")

// DestinationFromData derives the target tranche from a "dest:<tranche>"
// marker in the transfer payload, falling back to the given policy when the
// payload carries none. The marker may appear anywhere in the payload,
// newline-separated from other fields.
func DestinationFromData(fallback DestinationPolicy) DestinationPolicy {
	return func(ctx context.Context, req Request) (domain.Tranche, error) {
		for _, line := range bytes.Split(req.Data, []byte("\n")) {
			if !bytes.HasPrefix(line, destPrefix) {
				continue
			}
			name := string(bytes.TrimPrefix(line, destPrefix))
			t, err := domain.ParseTranche(name)
			if err != nil {
				return domain.Tranche{}, fmt.Errorf("destination marker: %w", err)
			}
			return t, nil
		}
		return fallback(ctx, req)
	}
}
