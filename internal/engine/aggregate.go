package engine

import (
	"strconv"

	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
	"github.com/emberline/catalogstore/internal/storage"
)

// Aggregate is the contract a domain entity fulfills to be committed through
// a scope. Version reflects the last event applied to the state, and
// UncommittedEvents returns the events recorded since the aggregate was
// loaded, in application order.
type Aggregate interface {
	AggregateID() string
	Version() int64
	UncommittedEvents() []storage.EventRecord
	Snapshot() (storage.SnapshotRecord, error)
}

// Mutation carries the state before and after a single applied operation, so
// callers can build event payloads holding both sides of the change.
type Mutation[S any] struct {
	Prior S
	Next  S
}

// Mutate applies op to the current state, and on success advances the state
// and bumps the version by one. A failed op leaves both untouched.
func Mutate[S any](version *int64, state *S, op func(S) (S, error)) (Mutation[S], error) {
	prior := *state
	next, err := op(prior)
	if err != nil {
		return Mutation[S]{}, err
	}
	*state = next
	*version++
	return Mutation[S]{Prior: prior, Next: next}, nil
}

// CheckVersion rejects a write whose expected version no longer matches the
// persisted one. The returned error carries both versions so callers can
// reload and retry.
func CheckVersion(aggregateID string, expected, actual int64) error {
	if expected == actual {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeVersionConflict, "aggregate version mismatch", map[string]string{
		"aggregate_id":     aggregateID,
		"expected_version": strconv.FormatInt(expected, 10),
		"actual_version":   strconv.FormatInt(actual, 10),
	})
}
