package billing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messbook/billing-engine/billing"
	"github.com/messbook/billing-engine/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestMembership(t *testing.T, historyAvailable bool) (*billing.MembershipHistory, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return billing.NewMembershipHistory(mem, mem, historyAvailable), mem
}

func seedUser(mem *store.Memory, id string, createdAt billing.DateStamp, current billing.MembershipStatus) {
	mem.PutUser(billing.User{
		ID:            billing.UserID(id),
		Name:          id,
		CreatedAt:     createdAt,
		DefaultStatus: billing.StatusActive,
		CurrentStatus: current,
	})
}

func seedChange(t *testing.T, mem *store.Memory, userID string, status billing.MembershipStatus, at time.Time) {
	t.Helper()
	err := mem.AppendChange(context.Background(), billing.MembershipStatusChange{
		ID:        billing.ChangeID(fmt.Sprintf("ch-%s-%d", userID, at.Unix())),
		UserID:    billing.UserID(userID),
		Status:    status,
		ChangedAt: at,
	})
	require.NoError(t, err)
}

func at(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

// =============================================================================
// STATUS ON A DATE
// =============================================================================

func TestStatusOn_CreationDefault_NoChanges(t *testing.T) {
	// GIVEN: A user created Jan 1 with no status changes
	// WHEN: Asking for their status on Jan 15
	// THEN: The creation default (Active) answers

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	status, approx, err := history.StatusOn(context.Background(), "u1", date(2024, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, status)
	assert.False(t, approx)
}

func TestStatusOn_ChangeAppliesToWholeDay(t *testing.T) {
	// GIVEN: A user flipped Inactive at 14:00 on Jan 15
	// WHEN: Asking for Jan 15 and Jan 14
	// THEN: Jan 15 is Inactive (change covers its whole day), Jan 14 Active

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusInactive)
	seedChange(t, mem, "u1", billing.StatusInactive, at(2024, time.January, 15, 14))

	status, _, err := history.StatusOn(context.Background(), "u1", date(2024, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, billing.StatusInactive, status)

	status, _, err = history.StatusOn(context.Background(), "u1", date(2024, time.January, 14))
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, status)
}

func TestStatusOn_LatestChangeOfTheDayWins(t *testing.T) {
	// GIVEN: Inactive at 09:00 and Active at 17:00, both Jan 15
	// WHEN: Asking for Jan 15
	// THEN: The 17:00 change answers

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)
	seedChange(t, mem, "u1", billing.StatusInactive, at(2024, time.January, 15, 9))
	seedChange(t, mem, "u1", billing.StatusActive, at(2024, time.January, 15, 17))

	status, _, err := history.StatusOn(context.Background(), "u1", date(2024, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, billing.StatusActive, status)
}

func TestStatusOn_UserCreatedAfterDate_Inactive(t *testing.T) {
	// GIVEN: A user created Feb 1
	// WHEN: Asking for Jan 15
	// THEN: Inactive (did not exist), not approximate

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.February, 1), billing.StatusActive)

	status, approx, err := history.StatusOn(context.Background(), "u1", date(2024, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, billing.StatusInactive, status)
	assert.False(t, approx)
}

func TestStatusOn_UnknownUser_NotFound(t *testing.T) {
	history, _ := newTestMembership(t, true)

	_, _, err := history.StatusOn(context.Background(), "ghost", date(2024, time.January, 15))
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

// =============================================================================
// ACTIVE DAY COUNT
// =============================================================================

func TestActiveDayCount_SingleDayWindow(t *testing.T) {
	// GIVEN: A user active throughout
	// WHEN: Counting over [Jan 15, Jan 15]
	// THEN: Exactly 1

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	count, approx, err := history.ActiveDayCount(context.Background(), "u1", date(2024, time.January, 15), date(2024, time.January, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, approx)
}

func TestActiveDayCount_ClampsToCreationDate(t *testing.T) {
	// GIVEN: A user created Jan 10
	// WHEN: Counting over [Jan 1, Jan 20]
	// THEN: Only Jan 10..20 count: 11 days

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 10), billing.StatusActive)

	count, _, err := history.ActiveDayCount(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 20))
	require.NoError(t, err)
	assert.Equal(t, 11, count)
}

func TestActiveDayCount_StatusFlipMidWindow(t *testing.T) {
	// GIVEN: Active from Jan 1, flipped Inactive on Jan 16
	// WHEN: Counting over [Jan 1, Jan 31]
	// THEN: Jan 1..15 count: 15 days

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusInactive)
	seedChange(t, mem, "u1", billing.StatusInactive, at(2024, time.January, 16, 10))

	count, _, err := history.ActiveDayCount(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, 15, count)
}

func TestActiveDayCount_ReactivationCountsAgain(t *testing.T) {
	// GIVEN: Inactive Jan 11, Active again Jan 21
	// WHEN: Counting over [Jan 1, Jan 31]
	// THEN: Jan 1..10 and Jan 21..31: 10 + 11 = 21 days

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)
	seedChange(t, mem, "u1", billing.StatusInactive, at(2024, time.January, 11, 8))
	seedChange(t, mem, "u1", billing.StatusActive, at(2024, time.January, 21, 8))

	count, _, err := history.ActiveDayCount(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, 21, count)
}

func TestActiveDayCount_EmptyWindowAfterClamp_Zero(t *testing.T) {
	// GIVEN: A user created Feb 1
	// WHEN: Counting over a January window
	// THEN: 0, no error

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.February, 1), billing.StatusActive)

	count, _, err := history.ActiveDayCount(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// =============================================================================
// LAST ACTIVE DAY
// =============================================================================

func TestLastActiveDay_StillActive_ReturnsUntil(t *testing.T) {
	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	last, found, approx, err := history.LastActiveDay(context.Background(), "u1", date(2024, time.January, 31))
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, approx)
	assert.Equal(t, "2024-01-31", last.String())
}

func TestLastActiveDay_InactiveTail(t *testing.T) {
	// GIVEN: Flipped Inactive on Jan 16
	// WHEN: Asking until Jan 31
	// THEN: Jan 15 was the last active day

	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusInactive)
	seedChange(t, mem, "u1", billing.StatusInactive, at(2024, time.January, 16, 10))

	last, found, _, err := history.LastActiveDay(context.Background(), "u1", date(2024, time.January, 31))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2024-01-15", last.String())
}

func TestLastActiveDay_NeverActive_NotFound(t *testing.T) {
	// GIVEN: A user whose default is Inactive and who never activated
	// WHEN: Asking for the last active day
	// THEN: found == false

	history, mem := newTestMembership(t, true)
	mem.PutUser(billing.User{
		ID:            "u1",
		Name:          "u1",
		CreatedAt:     date(2024, time.January, 1),
		DefaultStatus: billing.StatusInactive,
		CurrentStatus: billing.StatusInactive,
	})

	_, found, _, err := history.LastActiveDay(context.Background(), "u1", date(2024, time.January, 31))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLastActiveDay_CreatedAfterUntil_NotFound(t *testing.T) {
	history, mem := newTestMembership(t, true)
	seedUser(mem, "u1", date(2024, time.February, 10), billing.StatusActive)

	_, found, _, err := history.LastActiveDay(context.Background(), "u1", date(2024, time.January, 31))
	require.NoError(t, err)
	assert.False(t, found)
}

// =============================================================================
// DEGRADED MODE
// =============================================================================

func TestDegradedMode_HoldsCurrentStatusAndFlags(t *testing.T) {
	// GIVEN: History unavailable; the log says Inactive since Jan 16,
	//        but the user row's current status is Active
	// WHEN: Counting active days over January
	// THEN: The approximation holds Active constant, counts all 31 days,
	//       and flags the result

	history, mem := newTestMembership(t, false)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)
	seedChange(t, mem, "u1", billing.StatusInactive, at(2024, time.January, 16, 10))
	// AppendChange mirrors into CurrentStatus; restore the stale value
	// the degraded deployment would actually hold.
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	count, approx, err := history.ActiveDayCount(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	assert.True(t, approx, "degraded results must be flagged")
	assert.Equal(t, 31, count)
}

func TestDegradedMode_LogsWarning(t *testing.T) {
	// GIVEN: History unavailable and a captured log sink
	// WHEN: Any status question is asked
	// THEN: A degraded-data warning naming the user is logged

	history, mem := newTestMembership(t, false)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	var logged []string
	history.Logf = func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}

	_, approx, err := history.StatusOn(context.Background(), "u1", date(2024, time.January, 15))
	require.NoError(t, err)
	assert.True(t, approx)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "u1")
	assert.Contains(t, logged[0], "current-status approximation")
}

func TestDegradedMode_InactiveCurrentStatus_ZeroDays(t *testing.T) {
	history, mem := newTestMembership(t, false)
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusInactive)

	count, approx, err := history.ActiveDayCount(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	assert.True(t, approx)
	assert.Equal(t, 0, count)
}
