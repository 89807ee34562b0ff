// Package access implements the authorization and rate-limiting decision
// engine. Given a caller, a target service and a requested permission it
// answers allow or deny, and it maintains the per-minute invocation quota by
// counting recent usage records. The engine holds no state of its own: every
// decision is recomputed from the store, so the store's read consistency is
// the only safety boundary between concurrent requests.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// Window is the length of the sliding rate-limit window. The cutoff is
// always now minus Window in wall-clock UTC, never a calendar boundary, so
// capacity frees up continuously as old invocations age out.
const Window = time.Minute

// ServiceFinder resolves services by id.
type ServiceFinder interface {
	GetByID(ctx context.Context, id uint64) (*repository.CloudService, error)
}

// GrantFinder answers whether an exact (user, service, permission) grant
// tuple exists.
type GrantFinder interface {
	Find(ctx context.Context, userID, serviceID uint64, permission string) (*repository.AccessControl, error)
}

// UsageStore counts and appends invocation records. ReserveSlot is the
// atomic combination of both used by Invoke.
type UsageStore interface {
	CountSince(ctx context.Context, userID, serviceID uint64, since time.Time) (int, error)
	Append(ctx context.Context, userID, serviceID uint64) (*repository.UsageRecord, error)
	ReserveSlot(ctx context.Context, userID, serviceID uint64, since time.Time) (repository.Reservation, error)
}

// Outcome classifies a decision. The zero value is not a valid outcome.
type Outcome int

const (
	// OutcomeAllow means the caller holds the grant and is under quota.
	OutcomeAllow Outcome = iota + 1
	// OutcomeServiceNotFound means the target service does not exist.
	OutcomeServiceNotFound
	// OutcomeNoGrant means the caller lacks the exact permission grant.
	OutcomeNoGrant
	// OutcomeRateLimited means the quota for the current window is spent.
	OutcomeRateLimited
)

// Decision is the engine's answer for one invocation attempt. Count and
// Limit are populated whenever the quota was evaluated, so a rate-limited
// caller can be told how full the window is.
type Decision struct {
	Outcome Outcome
	Service *repository.CloudService // nil only when the service is missing
	Count   int                      // committed invocations inside the window
	Limit   int                      // the service quota at decision time
}

// Allowed reports whether the decision permits the call.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

// Engine decides access and enforces the sliding-window quota. It depends
// only on the narrow store interfaces above; the concrete repositories
// satisfy them.
type Engine struct {
	services ServiceFinder
	grants   GrantFinder
	usage    UsageStore
	now      func() time.Time
}

// NewEngine wires an Engine to its store. All three dependencies are
// required.
func NewEngine(services ServiceFinder, grants GrantFinder, usage UsageStore) *Engine {
	if services == nil || grants == nil || usage == nil {
		panic("nil store passed to NewEngine")
	}
	return &Engine{services: services, grants: grants, usage: usage, now: time.Now}
}

// CheckAccess evaluates, in order: the service exists, the caller holds the
// exact grant, and the caller's usage in the last minute is under the
// service quota. The returned error is non-nil only for store failures;
// every policy denial is expressed through the Decision.
//
// CheckAccess performs no write. Paired with a later Record, the check and
// the append are two separate store operations, so two concurrent calls
// that each see an under-limit count can both pass; Invoke is the closed
// variant. A denial is a one-shot synchronous answer, never queued,
// delayed, or retried.
func (e *Engine) CheckAccess(ctx context.Context, userID, serviceID uint64, permission string) (Decision, error) {
	svc, err := e.services.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return Decision{Outcome: OutcomeServiceNotFound}, nil
		}
		return Decision{}, err
	}

	if _, err := e.grants.Find(ctx, userID, serviceID, permission); err != nil {
		if errors.Is(err, repository.ErrGrantNotFound) {
			return Decision{Outcome: OutcomeNoGrant, Service: svc}, nil
		}
		return Decision{}, err
	}

	cutoff := e.now().UTC().Add(-Window)
	count, err := e.usage.CountSince(ctx, userID, serviceID, cutoff)
	if err != nil {
		return Decision{}, err
	}
	if count >= svc.MaxCallsPerMinute {
		return Decision{Outcome: OutcomeRateLimited, Service: svc, Count: count, Limit: svc.MaxCallsPerMinute}, nil
	}
	return Decision{Outcome: OutcomeAllow, Service: svc, Count: count, Limit: svc.MaxCallsPerMinute}, nil
}

// Record appends one usage row for a call that was already allowed. It must
// run after CheckAccess returns allow, never before: the row written here is
// what the next evaluation counts.
func (e *Engine) Record(ctx context.Context, userID, serviceID uint64) (*repository.UsageRecord, error) {
	return e.usage.Append(ctx, userID, serviceID)
}

// Invoke is the atomic check-and-record path. The grant check runs first,
// then the quota evaluation and the usage append happen inside a single
// store transaction with the service row locked, so concurrent invocations
// serialize and the window count can never overshoot the limit. The external
// contract is identical to CheckAccess followed by Record.
func (e *Engine) Invoke(ctx context.Context, userID, serviceID uint64, permission string) (Decision, error) {
	svc, err := e.services.GetByID(ctx, serviceID)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return Decision{Outcome: OutcomeServiceNotFound}, nil
		}
		return Decision{}, err
	}

	if _, err := e.grants.Find(ctx, userID, serviceID, permission); err != nil {
		if errors.Is(err, repository.ErrGrantNotFound) {
			return Decision{Outcome: OutcomeNoGrant, Service: svc}, nil
		}
		return Decision{}, err
	}

	cutoff := e.now().UTC().Add(-Window)
	rv, err := e.usage.ReserveSlot(ctx, userID, serviceID, cutoff)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			// Deleted between the lookup above and the reservation.
			return Decision{Outcome: OutcomeServiceNotFound}, nil
		}
		return Decision{}, err
	}
	if !rv.Allowed {
		return Decision{Outcome: OutcomeRateLimited, Service: svc, Count: rv.Count, Limit: rv.Limit}, nil
	}
	return Decision{Outcome: OutcomeAllow, Service: svc, Count: rv.Count, Limit: rv.Limit}, nil
}
