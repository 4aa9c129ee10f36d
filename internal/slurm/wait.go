package slurm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vk/memogrid/internal/ctxlog"
)

// errJobsPending signals the poll loop to back off and retry.
var errJobsPending = errors.New("jobs still pending")

// waitBackoff builds the poll schedule: geometric growth from a small initial
// interval toward a capped maximum, never giving up. The loop is bounded by
// the scheduler's accounting retention window, not by attempt count.
func waitBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 1.35
	bo.MaxInterval = 2 * time.Minute
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0
	return backoff.WithContext(bo, ctx)
}

// Wait polls the accounting interface until the latest job instance of every
// stable id is COMPLETED. A latest instance in FAILED, CANCELLED* or
// OUT_OF_MEMORY fails immediately with the native job id and elapsed time;
// TIMEOUT is left pending because the check job resubmits it.
func (a *Adapter) Wait(ctx context.Context, stableIDs []string) error {
	if len(stableIDs) == 0 {
		return nil
	}

	tracked := make(map[string]bool, len(stableIDs))
	for _, id := range stableIDs {
		tracked[id] = true
	}

	poll := func() error {
		done, err := a.pollOnce(ctx, tracked)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errJobsPending
		}
		return nil
	}

	return backoff.Retry(poll, waitBackoff(ctx))
}

// pollOnce queries recent accounting records and classifies the latest
// instance per tracked id. It returns true once everything is COMPLETED.
func (a *Adapter) pollOnce(ctx context.Context, tracked map[string]bool) (bool, error) {
	logger := ctxlog.FromContext(ctx)

	raw, err := a.cmd.Accounting(ctx, "-X", "-P", "-S", "now-48hour", "--format", accountingColumns)
	if err != nil {
		return false, err
	}
	records, err := parseAccounting(raw)
	if err != nil {
		return false, err
	}

	latest := latestByStableID(records, tracked)

	for id, rec := range latest {
		state := rec.State
		switch {
		case state == StateFailed,
			strings.Contains(state, StateCancelled),
			strings.Contains(state, StateOutOfMemory):
			return false, &JobFailedError{NativeID: rec.JobID, State: state, Elapsed: rec.Elapsed}
		}
		logger.Debug("Job state.", "stable_id", id, "native_id", rec.JobID, "state", state)
	}

	if len(latest) < len(tracked) {
		// Some jobs have no accounting record yet.
		return false, nil
	}
	for _, rec := range latest {
		if rec.State != StateCompleted {
			return false, nil
		}
	}
	return true, nil
}

// String renders a record for diagnostics.
func (r JobRecord) String() string {
	return fmt.Sprintf("%s (native %s)", r.StableID, r.NativeID)
}
