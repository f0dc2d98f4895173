package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messbook/billing-engine/billing"
)

// =============================================================================
// PER-USER REPORT
// =============================================================================

func TestReport_ForUser_TalliesRemarks(t *testing.T) {
	// GIVEN: A January with one of each attendance shape
	// WHEN: Building the user's period report
	// THEN: The tally matches the truth table, one count per record

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	present := billing.AttendancePresent
	absent := billing.AttendanceAbsent
	f.mem.PutAttendance(billing.AttendanceRecord{
		UserID: "u1", Date: date(2024, time.January, 10),
		Status: &present, IsOpen: true, FineAmount: billing.ZeroMoney(),
	})
	f.mem.PutAttendance(billing.AttendanceRecord{
		UserID: "u1", Date: date(2024, time.January, 11),
		Status: &present, IsOpen: false, FineAmount: billing.ZeroMoney(),
	})
	f.mem.PutAttendance(billing.AttendanceRecord{
		UserID: "u1", Date: date(2024, time.January, 12),
		Status: &absent, IsOpen: true, FineAmount: billing.ZeroMoney(),
	})
	f.mem.PutAttendance(billing.AttendanceRecord{
		UserID: "u1", Date: date(2024, time.January, 13),
		Status: &absent, IsOpen: false, FineAmount: billing.ZeroMoney(),
	})
	f.mem.PutAttendance(billing.AttendanceRecord{
		UserID: "u1", Date: date(2024, time.January, 14),
		IsOpen: true, FineAmount: billing.ZeroMoney(),
	})

	builder := billing.NewReportBuilder(f.aggregator, f.mem, f.mem)
	report, err := builder.ForUser(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Remarks.AllClear)
	assert.Equal(t, 1, report.Remarks.Unclosed)
	assert.Equal(t, 1, report.Remarks.Unopened)
	assert.Equal(t, 1, report.Remarks.Unmarked)

	assert.Equal(t, "u1", report.UserName)
	assert.Equal(t, 31, report.Payable.ActiveDays)
}

func TestReport_ForUser_InvalidWindow(t *testing.T) {
	f := newBillingFixture(t)
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	builder := billing.NewReportBuilder(f.aggregator, f.mem, f.mem)
	_, err := builder.ForUser(context.Background(), "u1", date(2024, time.January, 31), date(2024, time.January, 1))
	assert.ErrorIs(t, err, billing.ErrInvalidWindow)
}

func TestReport_ForUser_UnknownUser(t *testing.T) {
	f := newBillingFixture(t)

	builder := billing.NewReportBuilder(f.aggregator, f.mem, f.mem)
	_, err := builder.ForUser(context.Background(), "ghost", date(2024, time.January, 1), date(2024, time.January, 31))
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

// =============================================================================
// ALL-USER REPORT
// =============================================================================

func TestReport_ForAllUsers(t *testing.T) {
	// GIVEN: Two members with different creation dates
	// WHEN: Building the month-end view
	// THEN: One report each, independently aggregated

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "alice", date(2024, time.January, 1), billing.StatusActive)
	seedUser(f.mem, "bob", date(2024, time.January, 22), billing.StatusActive)

	builder := billing.NewReportBuilder(f.aggregator, f.mem, f.mem)
	reports, err := builder.ForAllUsers(context.Background(), date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	byID := map[billing.UserID]billing.UserPeriodReport{}
	for _, r := range reports {
		byID[r.UserID] = r
	}
	assert.Equal(t, 31, byID["alice"].Payable.ActiveDays)
	assert.Equal(t, 10, byID["bob"].Payable.ActiveDays)
}
