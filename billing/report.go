/*
report.go - BillingPeriodReport

PURPOSE:
  The collaborator-facing summarizer. Drives PayableAggregator across a
  reporting window and shapes the output for presentation: per-user
  payable breakdowns plus a tally of remarks over the window's
  attendance records. Remark attribution goes through ComputeRemark,
  the same function every other call site uses.
*/
package billing

import "context"

// RemarkTally counts each remark kind over a window.
type RemarkTally struct {
	AllClear int
	Unclosed int
	Unopened int
	Unmarked int
}

func (t *RemarkTally) add(r Remark) {
	switch r {
	case RemarkAllClear:
		t.AllClear++
	case RemarkUnclosed:
		t.Unclosed++
	case RemarkUnopened:
		t.Unopened++
	default:
		t.Unmarked++
	}
}

// UserPeriodReport is one user's presentation-ready summary.
type UserPeriodReport struct {
	UserID   UserID
	UserName string
	Window   Window
	Payable  PayableBreakdown
	Remarks  RemarkTally
}

// ReportBuilder assembles period reports.
type ReportBuilder struct {
	aggregator *PayableAggregator
	users      UserRepository
	attendance AttendanceReader
}

func NewReportBuilder(aggregator *PayableAggregator, users UserRepository, attendance AttendanceReader) *ReportBuilder {
	return &ReportBuilder{aggregator: aggregator, users: users, attendance: attendance}
}

// ForUser builds the report for one user over a window.
func (b *ReportBuilder) ForUser(ctx context.Context, userID UserID, windowStart, windowEnd DateStamp) (UserPeriodReport, error) {
	w := Window{Start: windowStart, End: windowEnd}
	if !w.Valid() {
		return UserPeriodReport{}, ErrInvalidWindow
	}

	user, err := b.users.GetUser(ctx, userID)
	if err != nil {
		return UserPeriodReport{}, err
	}

	payable, err := b.aggregator.PayableFor(ctx, userID, windowStart, windowEnd)
	if err != nil {
		return UserPeriodReport{}, err
	}

	records, err := b.attendance.ListAttendance(ctx, userID, windowStart, windowEnd)
	if err != nil {
		return UserPeriodReport{}, err
	}

	var tally RemarkTally
	for _, rec := range records {
		tally.add(ComputeRemark(rec.Status, rec.IsOpen))
	}

	return UserPeriodReport{
		UserID:   user.ID,
		UserName: user.Name,
		Window:   w,
		Payable:  payable,
		Remarks:  tally,
	}, nil
}

// ForAllUsers builds the month-end admin view: one report per user.
// Requires a UserDirectory-capable repository.
func (b *ReportBuilder) ForAllUsers(ctx context.Context, windowStart, windowEnd DateStamp) ([]UserPeriodReport, error) {
	dir, ok := b.users.(UserDirectory)
	if !ok {
		return nil, ErrStoreRequired
	}

	users, err := dir.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]UserPeriodReport, 0, len(users))
	for _, u := range users {
		r, err := b.ForUser(ctx, u.ID, windowStart, windowEnd)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}
