/*
remark.go - Disciplinary remark derivation

PURPOSE:
  Maps an attendance record's (status, meal-open flag) pair to a
  disciplinary remark and its fine category. This is the single source
  of truth for fine attribution: attendance updates, dashboards, and
  billing all call Remark rather than re-deriving the table locally.

TRUTH TABLE:
  status   isOpen  remark
  nil      any     none (nothing to judge yet)
  Present  true    AllClear   booked and attended
  Present  false   Unopened   ate a meal that was never provisioned
  Absent   false   AllClear   not booked, not attended
  Absent   true    Unclosed   booked a meal and wasted it
*/
package billing

import "context"

// Remark is the derived disciplinary label for one attendance record.
type Remark string

const (
	RemarkNone     Remark = ""
	RemarkAllClear Remark = "all_clear"
	RemarkUnclosed Remark = "unclosed"
	RemarkUnopened Remark = "unopened"
)

// ComputeRemark is a pure, total function over the attendance truth
// table. status == nil means the record has not been marked yet and
// yields RemarkNone.
func ComputeRemark(status *AttendanceStatus, isOpen bool) Remark {
	if status == nil {
		return RemarkNone
	}
	switch {
	case *status == AttendancePresent && isOpen:
		return RemarkAllClear
	case *status == AttendancePresent && !isOpen:
		return RemarkUnopened
	case *status == AttendanceAbsent && isOpen:
		return RemarkUnclosed
	default: // absent, not open
		return RemarkAllClear
	}
}

// FineSettingKey returns the catalog key holding the fine amount for a
// remark, or "" for remarks that carry no fine.
func FineSettingKey(r Remark) SettingKey {
	switch r {
	case RemarkUnclosed:
		return KeyUnclosedFine
	case RemarkUnopened:
		return KeyUnopenedFine
	default:
		return ""
	}
}

// FineFor resolves the fine amount a remark attracts on a given date,
// using the fine settings effective on that date. AllClear and unmarked
// records cost nothing; everything costs nothing while fines are
// disabled system-wide.
func FineFor(ctx context.Context, settings *Settings, r Remark, date DateStamp) (Money, error) {
	key := FineSettingKey(r)
	if key == "" {
		return ZeroMoney(), nil
	}

	enabled, err := settings.ValueAt(ctx, KeyFinesEnabled, date)
	if err != nil {
		return Money{}, err
	}
	if !enabled.Bool {
		return ZeroMoney(), nil
	}

	return settings.MoneyAt(ctx, key, date)
}
