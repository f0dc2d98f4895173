/*
payable.go - PayableAggregator

PURPOSE:
  Combines prorated base expense, fines, guest charges, and payments
  over a billing window into the net amount a user owes. This is a
  read-only projection over the other components' data: it mutates
  nothing, either completes fully or fails with no partial result, and
  is safe to call any number of times.

ALGORITHM (per window):
  1. effectiveEnd = min(windowEnd, last day the user was active/existed)
  2. activeDays   = ActiveDayCount(user, createdAt, effectiveEnd);
     zero active days short-circuits to an all-zero result
  3. baseExpense  = (monthly_expense_per_head at today / 30) * activeDays
     The flat /30 divisor is intentional and preserved; it does not
     track the calendar month's actual day count.
  4. fines        = sum of attendance fine amounts in the window on
     days the user was Active (a batch job may fine a day after the
     user left; those are excluded)
  5. guestExpenses = sum of guest charges in the window on Active days
  6. payments     = sum of ALL the user's payments, window-unrestricted
  7. total        = max(0, base + fines + guests - payments)

ACTIVE-DAY FILTERING:
  Per-record status checks reuse one batched reconstruction of the
  change log (a dayStatuses map built by a single fold), not a
  StatusOn round-trip per record.
*/
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// PayableBreakdown is the result of one aggregation.
type PayableBreakdown struct {
	UserID        UserID
	Window        Window
	ActiveDays    int
	BaseExpense   Money
	Fines         Money
	GuestExpenses Money
	Payments      Money
	TotalPayable  Money

	// Approximate is set when any input came from the degraded
	// current-status fallback; reports should annotate such figures.
	Approximate bool
}

func zeroBreakdown(userID UserID, w Window) PayableBreakdown {
	return PayableBreakdown{
		UserID:        userID,
		Window:        w,
		BaseExpense:   ZeroMoney(),
		Fines:         ZeroMoney(),
		GuestExpenses: ZeroMoney(),
		Payments:      ZeroMoney(),
		TotalPayable:  ZeroMoney(),
	}
}

// PayableAggregator computes payable breakdowns.
type PayableAggregator struct {
	settings   *Settings
	membership *MembershipHistory
	users      UserRepository
	attendance AttendanceReader
	guests     GuestChargeReader
	payments   PaymentReader

	// Now is overridable for tests; defaults to Today. The base-expense
	// rate is the one effective "today", matching the original behavior
	// of billing at the current rate.
	Now func() DateStamp
}

func NewPayableAggregator(
	settings *Settings,
	membership *MembershipHistory,
	users UserRepository,
	attendance AttendanceReader,
	guests GuestChargeReader,
	payments PaymentReader,
) *PayableAggregator {
	return &PayableAggregator{
		settings:   settings,
		membership: membership,
		users:      users,
		attendance: attendance,
		guests:     guests,
		payments:   payments,
		Now:        Today,
	}
}

// monthlyDivisor is the flat day count used to prorate the monthly
// base expense, year-round.
const monthlyDivisor = 30

// PayableFor aggregates what the user owes for the window.
func (p *PayableAggregator) PayableFor(ctx context.Context, userID UserID, windowStart, windowEnd DateStamp) (PayableBreakdown, error) {
	w := Window{Start: windowStart, End: windowEnd}
	if !w.Valid() {
		return PayableBreakdown{}, ErrInvalidWindow
	}

	user, err := p.users.GetUser(ctx, userID)
	if err != nil {
		return PayableBreakdown{}, err
	}

	// 1. Clamp the window end to the user's last active/existing day.
	lastActive, found, approxEnd, err := p.membership.LastActiveDay(ctx, userID, windowEnd)
	if err != nil {
		return PayableBreakdown{}, err
	}
	if !found {
		// Never an active day: owes nothing, accrues nothing.
		out := zeroBreakdown(userID, w)
		out.Approximate = approxEnd
		return out, nil
	}
	effectiveEnd := MinDate(windowEnd, lastActive)

	// 2. Active days accrue from creation through the effective end.
	activeDays, approxDays, err := p.membership.ActiveDayCount(ctx, userID, user.CreatedAt, effectiveEnd)
	if err != nil {
		return PayableBreakdown{}, err
	}
	approximate := approxEnd || approxDays
	if activeDays == 0 {
		out := zeroBreakdown(userID, w)
		out.Approximate = approximate
		return out, nil
	}

	// 3. Prorated base expense at today's rate.
	monthly, err := p.settings.MoneyAt(ctx, KeyMonthlyExpense, p.Now())
	if err != nil {
		return PayableBreakdown{}, err
	}
	dailyBase := monthly.Div(decimal.NewFromInt(monthlyDivisor))
	baseExpense := dailyBase.Mul(decimal.NewFromInt(int64(activeDays)))

	// One reconstruction of the window's statuses serves both the fine
	// and guest-charge filters.
	activeOn, approxMap, err := p.activeDaySet(ctx, user, w)
	if err != nil {
		return PayableBreakdown{}, err
	}
	approximate = approximate || approxMap

	// 4. Fines on Active days only.
	records, err := p.attendance.ListAttendance(ctx, userID, w.Start, w.End)
	if err != nil {
		return PayableBreakdown{}, err
	}
	fines := ZeroMoney()
	for _, rec := range records {
		if rec.FineAmount.IsZero() || !w.Contains(rec.Date) {
			continue
		}
		if activeOn[rec.Date.String()] {
			fines = fines.Add(rec.FineAmount)
		}
	}

	// 5. Guest charges on Active days only.
	charges, err := p.guests.ListGuestCharges(ctx, userID, w.Start, w.End)
	if err != nil {
		return PayableBreakdown{}, err
	}
	guestExpenses := ZeroMoney()
	for _, ch := range charges {
		if !w.Contains(ch.Date) {
			continue
		}
		if activeOn[ch.Date.String()] {
			guestExpenses = guestExpenses.Add(ch.Amount)
		}
	}

	// 6. Payments always reduce dues, whenever made.
	pays, err := p.payments.ListPayments(ctx, userID)
	if err != nil {
		return PayableBreakdown{}, err
	}
	paid := ZeroMoney()
	for _, pay := range pays {
		paid = paid.Add(pay.Amount)
	}

	// 7. Net, floored at zero.
	total := baseExpense.Add(fines).Add(guestExpenses).Sub(paid).ClampNonNegative()

	return PayableBreakdown{
		UserID:        userID,
		Window:        w,
		ActiveDays:    activeDays,
		BaseExpense:   baseExpense,
		Fines:         fines,
		GuestExpenses: guestExpenses,
		Payments:      paid,
		TotalPayable:  total,
		Approximate:   approximate,
	}, nil
}

// activeDaySet folds the change log once into a date -> active map for
// the window.
func (p *PayableAggregator) activeDaySet(ctx context.Context, user User, w Window) (map[string]bool, bool, error) {
	out := make(map[string]bool, DaysInclusive(w.Start, w.End))

	if p.membership.Degraded() {
		active := user.CurrentStatus == StatusActive
		for day := MaxDate(w.Start, user.CreatedAt); day.BeforeOrEqual(w.End); day = day.AddDays(1) {
			out[day.String()] = active
		}
		return out, true, nil
	}

	changes, err := p.membership.changes.ListChanges(ctx, user.ID)
	if err != nil {
		return nil, false, err
	}

	status := user.DefaultStatus
	idx := 0
	start := MaxDate(w.Start, user.CreatedAt)
	// Catch the fold up to the window start first.
	preCutoff := start.AddDays(-1).EndOfDay()
	for idx < len(changes) && !changes[idx].ChangedAt.After(preCutoff) {
		status = changes[idx].Status
		idx++
	}
	for day := start; day.BeforeOrEqual(w.End); day = day.AddDays(1) {
		cutoff := day.EndOfDay()
		for idx < len(changes) && !changes[idx].ChangedAt.After(cutoff) {
			status = changes[idx].Status
			idx++
		}
		out[day.String()] = status == StatusActive
	}
	return out, false, nil
}
