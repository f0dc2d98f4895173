/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract: field naming
  can evolve without touching billing types, and monetary values cross
  the wire as decimal strings, never floats.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES AND AMOUNTS:
  All dates are "YYYY-MM-DD" strings. All amounts are decimal strings
  ("1000", "49.50"). Timestamps are RFC3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain types these project
*/
package api

import (
	"time"

	"github.com/messbook/billing-engine/billing"
)

// =============================================================================
// SETTINGS
// =============================================================================

// SettingDTO is one catalog entry with its currently effective value.
type SettingDTO struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	Unit    string `json:"unit,omitempty"`
	Value   string `json:"value"`
	Default string `json:"default"`
}

// SettingVersionDTO is one interval of a setting's history.
type SettingVersionDTO struct {
	ID            string  `json:"id"`
	Key           string  `json:"key"`
	Value         string  `json:"value"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to,omitempty"`
	CreatedBy     string  `json:"created_by,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// SettingDetailDTO is the full view of one key: effective value today,
// the nearest scheduled change, and the version history.
type SettingDetailDTO struct {
	Setting  SettingDTO          `json:"setting"`
	Upcoming *SettingVersionDTO  `json:"upcoming,omitempty"`
	History  []SettingVersionDTO `json:"history"`
}

// UpsertSettingRequest schedules a new value for a key.
type UpsertSettingRequest struct {
	Value         string `json:"value"`
	EffectiveFrom string `json:"effective_from"` // YYYY-MM-DD
	Actor         string `json:"actor,omitempty"`
}

// =============================================================================
// USERS AND MEMBERSHIP
// =============================================================================

// UserDTO represents a member in API responses.
type UserDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CreatedAt     string `json:"created_at"`
	CurrentStatus string `json:"current_status"`
}

// CreateUserRequest is the request to register a member.
type CreateUserRequest struct {
	ID        string `json:"id,omitempty"` // generated when empty
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"` // defaults to today
}

// StatusChangeRequest appends one Active/Inactive flip to the log.
type StatusChangeRequest struct {
	Status    string `json:"status"` // "active" or "inactive"
	ChangedAt string `json:"changed_at,omitempty"` // RFC3339, defaults to now
	ChangedBy string `json:"changed_by,omitempty"`
}

// StatusDTO answers "what was this user's status on date D?".
type StatusDTO struct {
	UserID      string `json:"user_id"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	Approximate bool   `json:"approximate"`
}

// =============================================================================
// ATTENDANCE / GUESTS / PAYMENTS
// =============================================================================

// AttendanceRequest marks one user's day. Status may be omitted for an
// unmarked day; is_open records whether the meal was booked.
type AttendanceRequest struct {
	UserID string  `json:"user_id"`
	Date   string  `json:"date"`
	Status *string `json:"status,omitempty"` // "present" or "absent"
	IsOpen bool    `json:"is_open"`
}

// AttendanceDTO echoes the stored record plus the derived remark and
// the fine attributed at recording time.
type AttendanceDTO struct {
	UserID     string  `json:"user_id"`
	Date       string  `json:"date"`
	Status     *string `json:"status,omitempty"`
	IsOpen     bool    `json:"is_open"`
	Remark     string  `json:"remark,omitempty"`
	FineAmount string  `json:"fine_amount"`
}

// GuestChargeRequest records a guest meal charged to the inviter.
type GuestChargeRequest struct {
	InviterID string `json:"inviter_id"`
	Date      string `json:"date"`
	Amount    string `json:"amount,omitempty"` // defaults to guest_meal_price at date
}

// GuestChargeDTO represents a stored guest charge.
type GuestChargeDTO struct {
	ID        string `json:"id"`
	InviterID string `json:"inviter_id"`
	Date      string `json:"date"`
	Amount    string `json:"amount"`
}

// PaymentRequest records money received from a user.
type PaymentRequest struct {
	UserID string `json:"user_id"`
	Amount string `json:"amount"`
}

// PaymentDTO represents a stored payment.
type PaymentDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// PAYABLE AND REPORTS
// =============================================================================

// PayableDTO is the itemized amount a user owes for a window.
type PayableDTO struct {
	UserID        string `json:"user_id"`
	WindowStart   string `json:"window_start"`
	WindowEnd     string `json:"window_end"`
	ActiveDays    int    `json:"active_days"`
	BaseExpense   string `json:"base_expense"`
	Fines         string `json:"fines"`
	GuestExpenses string `json:"guest_expenses"`
	Payments      string `json:"payments"`
	TotalPayable  string `json:"total_payable"`
	Approximate   bool   `json:"approximate,omitempty"`
}

// RemarkTallyDTO counts remark kinds over a window.
type RemarkTallyDTO struct {
	AllClear int `json:"all_clear"`
	Unclosed int `json:"unclosed"`
	Unopened int `json:"unopened"`
	Unmarked int `json:"unmarked"`
}

// ReportDTO is one user's period report.
type ReportDTO struct {
	UserID   string         `json:"user_id"`
	UserName string         `json:"user_name"`
	Payable  PayableDTO     `json:"payable"`
	Remarks  RemarkTallyDTO `json:"remarks"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSettingVersionDTO(v billing.SettingVersion) SettingVersionDTO {
	dto := SettingVersionDTO{
		ID:            string(v.ID),
		Key:           string(v.Key),
		Value:         v.Value.Raw(),
		EffectiveFrom: v.EffectiveFrom.String(),
		CreatedBy:     v.CreatedBy,
	}
	if v.EffectiveTo != nil {
		to := v.EffectiveTo.String()
		dto.EffectiveTo = &to
	}
	if !v.CreatedAt.IsZero() {
		dto.CreatedAt = v.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toSettingVersionDTOs(versions []billing.SettingVersion) []SettingVersionDTO {
	dtos := make([]SettingVersionDTO, len(versions))
	for i, v := range versions {
		dtos[i] = toSettingVersionDTO(v)
	}
	return dtos
}

func toUserDTO(u billing.User) UserDTO {
	return UserDTO{
		ID:            string(u.ID),
		Name:          u.Name,
		CreatedAt:     u.CreatedAt.String(),
		CurrentStatus: string(u.CurrentStatus),
	}
}

func toPayableDTO(b billing.PayableBreakdown) PayableDTO {
	return PayableDTO{
		UserID:        string(b.UserID),
		WindowStart:   b.Window.Start.String(),
		WindowEnd:     b.Window.End.String(),
		ActiveDays:    b.ActiveDays,
		BaseExpense:   b.BaseExpense.String(),
		Fines:         b.Fines.String(),
		GuestExpenses: b.GuestExpenses.String(),
		Payments:      b.Payments.String(),
		TotalPayable:  b.TotalPayable.String(),
		Approximate:   b.Approximate,
	}
}

func toReportDTO(r billing.UserPeriodReport) ReportDTO {
	return ReportDTO{
		UserID:   string(r.UserID),
		UserName: r.UserName,
		Payable:  toPayableDTO(r.Payable),
		Remarks: RemarkTallyDTO{
			AllClear: r.Remarks.AllClear,
			Unclosed: r.Remarks.Unclosed,
			Unopened: r.Remarks.Unopened,
			Unmarked: r.Remarks.Unmarked,
		},
	}
}
