/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  owns three append-mostly tables (setting versions, status changes,
  users) and reads three externally-owned ones (attendance, guest
  charges, payments). Implementations exist for SQLite (store/sqlite)
  and in-memory (billing/store, for tests and dev).

APPEND-MOSTLY CONTRACT:
  Setting versions are never deleted; the only permitted mutation is
  closing an open interval (setting effective_to) when a successor
  arrives, and that close must happen in the same transaction as the
  successor's insert. The status change log is strictly append-only.

SNAPSHOT SEMANTICS:
  Every read method is a point-in-time query against persisted history,
  so a concurrent admin write cannot corrupt a running report; each
  query observes whatever consistent snapshot the store provides.
*/
package billing

import "context"

// =============================================================================
// SETTING VERSION REPOSITORY
// =============================================================================

// SettingVersionRepository persists the versioned setting history.
type SettingVersionRepository interface {
	// Insert appends a new version. The caller has already validated
	// the value and resolved interval conflicts.
	Insert(ctx context.Context, v SettingVersion) error

	// Close sets effective_to on an open version. The only mutation
	// the history permits.
	Close(ctx context.Context, id VersionID, effectiveTo DateStamp) error

	// ListByKey returns all versions for a key, newest EffectiveFrom first.
	ListByKey(ctx context.Context, key SettingKey) ([]SettingVersion, error)

	// ListAll returns every version across keys, newest EffectiveFrom first.
	ListAll(ctx context.Context) ([]SettingVersion, error)
}

// SettingVersionTxRepository adds transactional composition so the
// close-previous + insert-new sequence is atomic: at no instant are two
// versions of one key simultaneously open.
type SettingVersionTxRepository interface {
	SettingVersionRepository

	// WithTx executes fn within a storage transaction. Error from fn
	// rolls everything back.
	WithTx(ctx context.Context, fn func(SettingVersionRepository) error) error
}

// =============================================================================
// MEMBERSHIP REPOSITORIES
// =============================================================================

// UserRepository resolves the minimal user projection the engine needs.
type UserRepository interface {
	// GetUser returns the user or a NotFoundError.
	GetUser(ctx context.Context, id UserID) (User, error)
}

// UserDirectory extends UserRepository with enumeration, used by the
// all-users period report.
type UserDirectory interface {
	UserRepository

	// ListUsers returns every user ordered by name.
	ListUsers(ctx context.Context) ([]User, error)
}

// StatusChangeRepository persists the append-only membership status log.
type StatusChangeRepository interface {
	// AppendChange records a status transition.
	AppendChange(ctx context.Context, change MembershipStatusChange) error

	// ListChanges returns all changes for a user ordered by ChangedAt
	// ascending. One call fetches the whole log; callers fold in memory
	// rather than querying per day.
	ListChanges(ctx context.Context, userID UserID) ([]MembershipStatusChange, error)
}

// =============================================================================
// EXTERNALLY-OWNED READERS
// =============================================================================

// AttendanceReader exposes the attendance table, read-only.
type AttendanceReader interface {
	ListAttendance(ctx context.Context, userID UserID, from, to DateStamp) ([]AttendanceRecord, error)
}

// GuestChargeReader exposes guest charges, read-only.
type GuestChargeReader interface {
	ListGuestCharges(ctx context.Context, inviterID UserID, from, to DateStamp) ([]GuestCharge, error)
}

// PaymentReader exposes payments, read-only. Payments are deliberately
// unscoped by date: they reduce dues whenever made.
type PaymentReader interface {
	ListPayments(ctx context.Context, userID UserID) ([]Payment, error)
}
