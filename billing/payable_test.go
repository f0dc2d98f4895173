package billing_test

import (
	"context"
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

type billingFixture struct {
	settings   *billing.Settings
	membership *billing.MembershipHistory
	aggregator *billing.PayableAggregator
	mem        *store.Memory
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	mem := store.NewMemory()

	settings := billing.NewSettings(mem)
	settings.Now = func() billing.DateStamp { return date(2024, time.January, 31) }

	membership := billing.NewMembershipHistory(mem, mem, true)
	aggregator := billing.NewPayableAggregator(settings, membership, mem, mem, mem, mem)
	aggregator.Now = settings.Now

	return &billingFixture{settings: settings, membership: membership, aggregator: aggregator, mem: mem}
}

func (f *billingFixture) setMonthlyExpense(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, f.settings.UpsertVersion(context.Background(),
		billing.KeyMonthlyExpense, number(raw), date(2024, time.January, 1), "admin"))
}

func (f *billingFixture) markDay(userID string, day billing.DateStamp, fine string) {
	absent := billing.AttendanceAbsent
	f.mem.PutAttendance(billing.AttendanceRecord{
		UserID:     billing.UserID(userID),
		Date:       day,
		Status:     &absent,
		IsOpen:     true, // absent + open: the fined "unclosed" shape
		FineAmount: billing.MustMoney(fine),
	})
}

// =============================================================================
// BASE EXPENSE
// =============================================================================

func TestPayableFor_BaseExpense_FlatThirtyDivisor(t *testing.T) {
	// GIVEN: Monthly expense 3000 and a user created Jan 10, always Active
	// WHEN: Aggregating over Jan 10..19 (10 days)
	// THEN: Base expense is 3000/30 * 10 = 1000

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 10), billing.StatusActive)

	out, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 10), date(2024, time.January, 19))
	require.NoError(t, err)

	assert.Equal(t, 10, out.ActiveDays)
	assert.Equal(t, "1000", out.BaseExpense.String())
	assert.Equal(t, "1000", out.TotalPayable.String())
	assert.False(t, out.Approximate)
}

func TestPayableFor_WindowEndClampedToLastActiveDay(t *testing.T) {
	// GIVEN: A user active Jan 1..15 then Inactive
	// WHEN: Aggregating over all of January
	// THEN: Only 15 days accrue

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusInactive)
	seedChange(t, f.mem, "u1", billing.StatusInactive, at(2024, time.January, 16, 10))

	out, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, 15, out.ActiveDays)
	assert.Equal(t, "1500", out.BaseExpense.String())
}

func TestPayableFor_NeverActive_ZeroBreakdown(t *testing.T) {
	// GIVEN: A user who was never Active
	// WHEN: Aggregating
	// THEN: Everything zero, including fines and guest charges on file

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	f.mem.PutUser(billing.User{
		ID: "u1", Name: "u1",
		CreatedAt:     date(2024, time.January, 1),
		DefaultStatus: billing.StatusInactive,
		CurrentStatus: billing.StatusInactive,
	})
	f.markDay("u1", date(2024, time.January, 10), "100")

	out, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, 0, out.ActiveDays)
	assert.True(t, out.TotalPayable.IsZero())
	assert.True(t, out.Fines.IsZero())
}

// =============================================================================
// FINES AND GUEST CHARGES
// =============================================================================

func TestPayableFor_FinesOnlyOnActiveDays(t *testing.T) {
	// GIVEN: Fines of 50 (Jan 10, active) and 100 (Jan 20, after the
	//        user went Inactive on Jan 16)
	// WHEN: Aggregating over January
	// THEN: Only the 50 fine is payable

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusInactive)
	seedChange(t, f.mem, "u1", billing.StatusInactive, at(2024, time.January, 16, 10))

	f.markDay("u1", date(2024, time.January, 10), "50")
	f.markDay("u1", date(2024, time.January, 20), "100")

	out, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, "50", out.Fines.String())
	// 15 active days * 100/day + 50 fine
	assert.Equal(t, "1550", out.TotalPayable.String())
}

func TestPayableFor_GuestChargesOnlyOnActiveDays(t *testing.T) {
	// GIVEN: Guest charges on an active day (Jan 10, 400) and an
	//        inactive day (Jan 20, 400)
	// WHEN: Aggregating over January
	// THEN: Only the active-day charge counts

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusInactive)
	seedChange(t, f.mem, "u1", billing.StatusInactive, at(2024, time.January, 16, 10))

	f.mem.PutGuestCharge(billing.GuestCharge{
		ID: "g1", InviterID: "u1",
		Date: date(2024, time.January, 10), Amount: billing.MustMoney("400"),
	})
	f.mem.PutGuestCharge(billing.GuestCharge{
		ID: "g2", InviterID: "u1",
		Date: date(2024, time.January, 20), Amount: billing.MustMoney("400"),
	})

	out, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, "400", out.GuestExpenses.String())
	assert.Equal(t, "1900", out.TotalPayable.String())
}

// =============================================================================
// PAYMENTS AND CLAMPING
// =============================================================================

func TestPayableFor_PaymentsReduceTotal(t *testing.T) {
	// GIVEN: 31 active days at 100/day (3100) and a payment of 1200
	// WHEN: Aggregating over January
	// THEN: Total is 1900; the payment applies regardless of when made

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	f.mem.PutPayment(billing.Payment{
		ID: "p1", UserID: "u1",
		Amount:    billing.MustMoney("1200"),
		CreatedAt: at(2023, time.December, 5, 12), // before the window
	})

	out, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, "3100", out.BaseExpense.String())
	assert.Equal(t, "1200", out.Payments.String())
	assert.Equal(t, "1900", out.TotalPayable.String())
}

func TestPayableFor_OverpaymentClampsToZero(t *testing.T) {
	// GIVEN: Dues of 3100 and payments of 5000
	// WHEN: Aggregating
	// THEN: Total clamps at zero; no negative balance or credit

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	f.mem.PutPayment(billing.Payment{
		ID: "p1", UserID: "u1",
		Amount:    billing.MustMoney("5000"),
		CreatedAt: at(2024, time.January, 20, 12),
	})

	out, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, "5000", out.Payments.String())
	assert.True(t, out.TotalPayable.IsZero())
	assert.False(t, out.TotalPayable.IsNegative())
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestPayableFor_ReadOnlyAndIdempotent(t *testing.T) {
	// GIVEN: A populated fixture
	// WHEN: Aggregating the same window twice
	// THEN: Identical results; aggregation writes nothing

	f := newBillingFixture(t)
	f.setMonthlyExpense(t, "3000")
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusActive)
	f.markDay("u1", date(2024, time.January, 10), "50")

	first, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)
	second, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPayableFor_InvalidWindow(t *testing.T) {
	f := newBillingFixture(t)
	seedUser(f.mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	_, err := f.aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 31), date(2024, time.January, 1))
	assert.ErrorIs(t, err, billing.ErrInvalidWindow)
}

func TestPayableFor_UnknownUser(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.aggregator.PayableFor(context.Background(), "ghost", date(2024, time.January, 1), date(2024, time.January, 31))
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestPayableFor_DegradedMode_FlagsApproximate(t *testing.T) {
	// GIVEN: The change log unavailable; current status Active
	// WHEN: Aggregating
	// THEN: Figures compute from the constant status and carry the flag

	mem := store.NewMemory()
	settings := billing.NewSettings(mem)
	settings.Now = func() billing.DateStamp { return date(2024, time.January, 31) }
	membership := billing.NewMembershipHistory(mem, mem, false)
	membership.Logf = nil
	aggregator := billing.NewPayableAggregator(settings, membership, mem, mem, mem, mem)
	aggregator.Now = settings.Now

	require.NoError(t, settings.UpsertVersion(context.Background(),
		billing.KeyMonthlyExpense, number("3000"), date(2024, time.January, 1), "admin"))
	seedUser(mem, "u1", date(2024, time.January, 1), billing.StatusActive)

	out, err := aggregator.PayableFor(context.Background(), "u1", date(2024, time.January, 1), date(2024, time.January, 31))
	require.NoError(t, err)

	assert.True(t, out.Approximate)
	assert.Equal(t, 31, out.ActiveDays)
	assert.Equal(t, "3100", out.BaseExpense.String())
}
