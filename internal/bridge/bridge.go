// Package bridge reconciles the authoritative session store with the legacy
// flat store. Nothing keeps the two in lockstep automatically; the bridge
// detects divergence, repairs the recoverable cases and hard-resets the rest.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kitchenops/sessionbridge/internal/autherr"
	"github.com/kitchenops/sessionbridge/internal/domain"
	"github.com/kitchenops/sessionbridge/internal/observability"
	"github.com/kitchenops/sessionbridge/internal/store"
)

// SessionBuilder rebuilds a full session from a provider user reference.
// service.SessionFactory satisfies this.
type SessionBuilder interface {
	Build(ctx context.Context, user domain.User) (*domain.Session, error)
}

// Notifier surfaces a consistency fault to the user. This is the one internal
// fault class shown directly, since continuing could present stale
// authorization.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// LogNotifier is the default Notifier for headless deployments.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "auth store notification", "message", message)
}

type Bridge struct {
	next     *store.SessionStore
	legacy   *store.LegacyStore
	builder  SessionBuilder
	notifier Notifier
	logger   *slog.Logger
}

func New(next *store.SessionStore, legacy *store.LegacyStore, builder SessionBuilder, notifier Notifier, logger *slog.Logger) *Bridge {
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{next: next, legacy: legacy, builder: builder, notifier: notifier, logger: logger}
}

// Sync reconciles the two stores. Calling it again with no intervening state
// change is a no-op. A builder failure or a post-sync disagreement resets
// both stores to signed out, records the error and notifies the user.
func (b *Bridge) Sync(ctx context.Context) error {
	nextState := b.next.Snapshot()
	legacyState := b.legacy.Snapshot()

	switch {
	case !nextState.SignedIn() && !legacyState.SignedIn():
		if nextState.Err != nil || legacyState.Err != nil || nextState.Loading {
			b.next.Reset()
			b.legacy.Reset()
			observability.RecordStoreSync("reset")
		} else {
			observability.RecordStoreSync("noop")
		}
	case legacyState.SignedIn() && !nextState.SignedIn():
		sess, err := b.builder.Build(ctx, *legacyState.User)
		if err != nil {
			b.logger.ErrorContext(ctx, "session rebuild during store sync failed",
				"user_id", legacyState.User.ID, "error", err)
			return b.hardReset(ctx, fmt.Errorf("promote legacy session: %w", err))
		}
		b.next.SetSession(sess)
		b.legacy.Apply(store.LegacyFromSession(sess))
		observability.RecordStoreSync("promote_legacy")
	case nextState.SignedIn() && !legacyState.SignedIn():
		b.legacy.Apply(store.LegacyFromSession(nextState.Session))
		observability.RecordStoreSync("backfill_legacy")
	default:
		observability.RecordStoreSync("noop")
	}

	if b.next.Snapshot().SignedIn() != b.legacy.Snapshot().SignedIn() {
		return b.hardReset(ctx, autherr.ErrStoreDesync)
	}
	return nil
}

// Verify is a non-mutating health check: true iff both sides agree on
// presence and, when both hold a session, on identity and access flags.
func (b *Bridge) Verify(ctx context.Context) bool {
	nextState := b.next.Snapshot()
	legacyState := b.legacy.Snapshot()
	if nextState.SignedIn() != legacyState.SignedIn() {
		return false
	}
	if !nextState.SignedIn() {
		return true
	}
	sess := nextState.Session
	return legacyState.User.ID == sess.User.ID &&
		legacyState.OrganizationID == sess.OrganizationID &&
		legacyState.IsDev == sess.IsDev &&
		legacyState.HasAdminAccess == sess.HasAdminAccess
}

func (b *Bridge) hardReset(ctx context.Context, cause error) error {
	err := autherr.Session("bridge.sync", cause)
	b.next.Fail(err)
	b.legacy.Fail(err)
	observability.RecordStoreSync("hard_reset")
	b.notifier.Notify(ctx, "Your session could not be restored. Please sign in again.")
	return err
}
