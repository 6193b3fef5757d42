package engine

import (
	"errors"

	apperrors "github.com/emberline/catalogstore/internal/platform/errors"
)

// ErrBackpressure indicates the batch scheduler's queue depth cap was hit.
// The write was not buffered; callers should retry after backoff.
var ErrBackpressure = apperrors.New(apperrors.CodeBackpressureRejected, "write queue depth exceeded")

// ErrStopped indicates the batch scheduler has shut down and no longer
// accepts work.
var ErrStopped = apperrors.New(apperrors.CodeEngineStopped, "batch scheduler is stopped")

// asTransactionFailure keeps typed domain errors intact and wraps everything
// else as a transaction failure so batch waiters always receive a structured
// error kind.
func asTransactionFailure(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.CodeTransactionFailed, "physical commit failed", err)
}
