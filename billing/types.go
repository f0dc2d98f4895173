/*
Package billing provides the temporal settings and billing calculation engine.

PURPOSE:
  This package contains the domain types and algorithms for cafeteria
  meal billing: time-versioned policy settings, day-by-day membership
  status reconstruction, disciplinary remark derivation, and payable
  aggregation over a billing window.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact decimal monetary amount (never binary floats)
  - SettingVersion: One entry of a setting's effective-interval history
  - MembershipStatusChange: Append-only log entry of Active/Inactive flips
  - AttendanceRecord / GuestCharge / Payment: Externally-owned records
    the engine reads but never mutates

DESIGN PRINCIPLES:
  1. History over mutation: settings and status are versioned logs,
     never single mutable rows, so past bills reproduce exactly
  2. Precision: decimal.Decimal for every monetary value
  3. Day granularity: all temporal reasoning is whole-calendar-day
  4. Read-only aggregation: billing computations have no side effects

SEE ALSO:
  - settings.go: TemporalSettingsStore over SettingVersion history
  - membership.go: Status reconstruction from the change log
  - payable.go: Window aggregation into a net payable amount
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal amount
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func NewMoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}
	}
	return Money{Value: d}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(b Money) Money              { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money              { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(s decimal.Decimal) Money    { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money    { return Money{Value: m.Value.Div(s)} }
func (m Money) IsNegative() bool               { return m.Value.IsNegative() }
func (m Money) IsZero() bool                   { return m.Value.IsZero() }
func (m Money) IsPositive() bool               { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool       { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool          { return m.Value.LessThan(b.Value) }
func (m Money) Equal(b Money) bool             { return m.Value.Equal(b.Value) }
func (m Money) String() string                 { return m.Value.String() }

// ClampNonNegative floors the amount at zero. Payable totals can never
// go negative; overpayment is not modeled as a credit.
func (m Money) ClampNonNegative() Money {
	if m.IsNegative() {
		return ZeroMoney()
	}
	return m
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type VersionID string
type ChangeID string

// =============================================================================
// MEMBERSHIP
// =============================================================================

type MembershipStatus string

const (
	StatusActive   MembershipStatus = "active"
	StatusInactive MembershipStatus = "inactive"
)

// User is the minimal user projection the engine needs: when the user
// came into existence and what their status defaults to.
type User struct {
	ID            UserID
	Name          string
	CreatedAt     DateStamp
	DefaultStatus MembershipStatus // status at creation, before any change
	CurrentStatus MembershipStatus // denormalized latest status; the degraded
	// fallback holds this constant when the change log is unavailable
}

// MembershipStatusChange is one entry of the append-only status log.
// A user's status on any date is the status of the latest change with
// ChangedAt <= end of that date, else the creation default.
type MembershipStatusChange struct {
	ID        ChangeID
	UserID    UserID
	Status    MembershipStatus
	ChangedAt time.Time
	ChangedBy string
}

// =============================================================================
// SETTING VERSIONS - Time-versioned policy values
// =============================================================================

// SettingVersion is one interval of a setting's history. The value is
// authoritative for [EffectiveFrom, EffectiveTo] inclusive; a nil
// EffectiveTo means the version is currently open (no successor yet).
type SettingVersion struct {
	ID            VersionID
	Key           SettingKey
	Value         TypedValue
	EffectiveFrom DateStamp
	EffectiveTo   *DateStamp
	CreatedBy     string
	CreatedAt     time.Time
}

// Covers reports whether the version's interval contains the date.
func (v SettingVersion) Covers(date DateStamp) bool {
	if date.Before(v.EffectiveFrom) {
		return false
	}
	return v.EffectiveTo == nil || date.BeforeOrEqual(*v.EffectiveTo)
}

// Open reports whether the version has no closing date yet.
func (v SettingVersion) Open() bool { return v.EffectiveTo == nil }

// =============================================================================
// EXTERNAL RECORDS - Read-only to this engine
// =============================================================================

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// AttendanceRecord is owned by the attendance subsystem. The engine
// reads Status, IsOpen, and FineAmount; it never writes one.
type AttendanceRecord struct {
	UserID     UserID
	Date       DateStamp
	Status     *AttendanceStatus // nil = not yet marked
	IsOpen     bool              // meal was booked (open) for the day
	FineAmount Money
}

// GuestCharge is a meal charge accrued by inviting a guest.
type GuestCharge struct {
	ID        ChangeID
	InviterID UserID
	Date      DateStamp
	Amount    Money
}

// Payment reduces a user's dues regardless of when it was made.
type Payment struct {
	ID        ChangeID
	UserID    UserID
	Amount    Money
	CreatedAt time.Time
}
