/*
membership.go - MembershipHistory

PURPOSE:
  Reconstructs a user's Active/Inactive status for any date from the
  append-only status change log plus the user's creation date. The log
  is the truth; the denormalized CurrentStatus on the user row exists
  only for the degraded fallback below.

DAY GRANULARITY:
  A change at 14:00 on day D applies for the whole of day D. Status on
  day D is the status of the latest change with ChangedAt <= end of D,
  else the creation default. A user created after D does not exist on D
  and counts as Inactive.

BATCHED RECONSTRUCTION:
  ActiveDayCount fetches the whole change log once and folds it against
  the date range as a sorted merge. Cost is linear in days + changes;
  never one query per day.

DEGRADED MODE:
  Partially-migrated deployments may not have the change log
  provisioned. The capability is declared at construction time (an
  explicit flag, not error-text sniffing); when absent, the user's
  current status is held constant for the whole window. That is a
  deliberate, lossy approximation: it is logged as a
  DegradedDataWarning and every result carries an approximate flag so
  financial reports can be annotated.
*/
package billing

import (
	"context"
	"log"
)

// MembershipHistory answers day-level status questions for users.
type MembershipHistory struct {
	users   UserRepository
	changes StatusChangeRepository

	// historyAvailable declares whether the status change log is
	// provisioned in this deployment.
	historyAvailable bool

	// Logf receives degraded-data warnings. Defaults to log.Printf.
	Logf func(format string, args ...any)
}

func NewMembershipHistory(users UserRepository, changes StatusChangeRepository, historyAvailable bool) *MembershipHistory {
	return &MembershipHistory{
		users:            users,
		changes:          changes,
		historyAvailable: historyAvailable,
		Logf:             log.Printf,
	}
}

// Degraded reports whether the current-status approximation is in use.
func (m *MembershipHistory) Degraded() bool { return !m.historyAvailable }

func (m *MembershipHistory) warn(userID UserID, w Window) {
	if m.Logf != nil {
		dw := &DegradedDataWarning{UserID: userID, Window: w}
		m.Logf("WARN billing: %s", dw)
	}
}

// =============================================================================
// STATUS QUERIES
// =============================================================================

// StatusOn returns the user's status on a date and whether the answer
// is an approximation from degraded mode.
func (m *MembershipHistory) StatusOn(ctx context.Context, userID UserID, date DateStamp) (MembershipStatus, bool, error) {
	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if user.CreatedAt.After(date) {
		// User did not exist yet; inactive for aggregation purposes.
		return StatusInactive, false, nil
	}

	if !m.historyAvailable {
		m.warn(userID, Window{Start: date, End: date})
		return user.CurrentStatus, true, nil
	}

	changes, err := m.changes.ListChanges(ctx, userID)
	if err != nil {
		return "", false, err
	}

	status := user.DefaultStatus
	cutoff := date.EndOfDay()
	for _, c := range changes {
		if c.ChangedAt.After(cutoff) {
			break
		}
		status = c.Status
	}
	return status, false, nil
}

// ActiveDayCount counts the calendar days in [max(start, createdAt),
// end] on which the user was Active. The second return reports whether
// the count is a degraded-mode approximation.
func (m *MembershipHistory) ActiveDayCount(ctx context.Context, userID UserID, start, end DateStamp) (int, bool, error) {
	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	start = MaxDate(start, user.CreatedAt)
	if end.Before(start) {
		return 0, false, nil
	}

	if !m.historyAvailable {
		m.warn(userID, Window{Start: start, End: end})
		if user.CurrentStatus == StatusActive {
			return DaysInclusive(start, end), true, nil
		}
		return 0, true, nil
	}

	changes, err := m.changes.ListChanges(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	// Sorted merge: advance the change pointer as the day cursor moves.
	count := 0
	status := user.DefaultStatus
	idx := 0
	for day := start; day.BeforeOrEqual(end); day = day.AddDays(1) {
		cutoff := day.EndOfDay()
		for idx < len(changes) && !changes[idx].ChangedAt.After(cutoff) {
			status = changes[idx].Status
			idx++
		}
		if status == StatusActive {
			count++
		}
	}
	return count, false, nil
}

// LastActiveDay returns the latest day on or before 'until' on which
// the user was Active. found=false when no such day exists. The third
// return reports a degraded-mode approximation.
func (m *MembershipHistory) LastActiveDay(ctx context.Context, userID UserID, until DateStamp) (DateStamp, bool, bool, error) {
	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return DateStamp{}, false, false, err
	}
	if user.CreatedAt.After(until) {
		return DateStamp{}, false, false, nil
	}

	if !m.historyAvailable {
		m.warn(userID, Window{Start: user.CreatedAt, End: until})
		if user.CurrentStatus == StatusActive {
			return until, true, true, nil
		}
		return DateStamp{}, false, true, nil
	}

	changes, err := m.changes.ListChanges(ctx, userID)
	if err != nil {
		return DateStamp{}, false, false, err
	}

	// Fold the log into status segments and keep the newest Active day.
	var (
		last     DateStamp
		found    bool
		status   = user.DefaultStatus
		segStart = user.CreatedAt
		untilEnd = until.EndOfDay()
	)
	for _, c := range changes {
		if c.ChangedAt.After(untilEnd) {
			break
		}
		changeDay := MaxDate(DateOf(c.ChangedAt), user.CreatedAt)
		segEnd := changeDay.AddDays(-1)
		if status == StatusActive && !segEnd.Before(segStart) {
			last, found = MinDate(segEnd, until), true
		}
		status = c.Status
		segStart = changeDay
	}
	if status == StatusActive && !until.Before(segStart) {
		last, found = until, true
	}
	return last, found, false, nil
}
