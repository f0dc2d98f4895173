/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Settings:
    GET    /api/settings                     Current value of every key
    GET    /api/settings/{key}               Current + upcoming + history
    POST   /api/settings/{key}               Schedule a new value
    GET    /api/settings/{key}/history       Version history

  Users:
    GET    /api/users                        List members
    POST   /api/users                        Register member
    GET    /api/users/{id}                   Member details
    GET    /api/users/{id}/status?date=      Status on a date
    POST   /api/users/{id}/status            Append status change
    GET    /api/users/{id}/payable?from=&to= Itemized payable
    GET    /api/users/{id}/report?from=&to=  Period report

  Records:
    POST   /api/attendance                   Mark a day (derives remark + fine)
    POST   /api/guests                       Record guest charge
    POST   /api/payments                     Record payment

  Reports:
    GET    /api/report?from=&to=             Period report, all users

REMARK ATTRIBUTION:
  POST /api/attendance is the single place remarks and fines attach to
  a day: the handler derives the remark from (status, is_open) and
  stores the fine amount effective at the record's date. Aggregation
  later reads the stored fine, it never re-derives.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown user or setting key
  - 409: Conflicting setting interval
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - billing/: Domain logic the handlers delegate to
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/messbook/billing-engine/billing"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface the handlers need: every read
// repository the engine consumes, plus the write paths the API owns.
// Satisfied by store/sqlite.Store and billing/store.Memory.
type Store interface {
	billing.SettingVersionTxRepository
	billing.UserDirectory
	billing.StatusChangeRepository
	billing.AttendanceReader
	billing.GuestChargeReader
	billing.PaymentReader

	SaveUser(ctx context.Context, u billing.User) error
	SaveAttendance(ctx context.Context, rec billing.AttendanceRecord) error
	SaveGuestCharge(ctx context.Context, ch billing.GuestCharge) error
	SavePayment(ctx context.Context, p billing.Payment) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Settings   *billing.Settings
	Membership *billing.MembershipHistory
	Aggregator *billing.PayableAggregator
	Reports    *billing.ReportBuilder
}

// NewHandler wires the engine on top of the given store.
func NewHandler(store Store, historyAvailable bool) *Handler {
	settings := billing.NewSettings(store)
	membership := billing.NewMembershipHistory(store, store, historyAvailable)
	aggregator := billing.NewPayableAggregator(settings, membership, store, store, store, store)
	return &Handler{
		Store:      store,
		Settings:   settings,
		Membership: membership,
		Aggregator: aggregator,
		Reports:    billing.NewReportBuilder(aggregator, store, store),
	}
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

// ListSettings returns the currently effective value of every key.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.Settings.Now()

	dtos := make([]SettingDTO, 0, len(billing.CatalogKeys()))
	for _, key := range billing.CatalogKeys() {
		def := billing.Catalog[key]
		value, err := h.Settings.ValueAt(ctx, key, today)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to resolve setting", err)
			return
		}
		dtos = append(dtos, SettingDTO{
			Key:     string(key),
			Type:    string(def.ValueType),
			Unit:    def.Unit,
			Value:   value.Raw(),
			Default: def.Default,
		})
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetSetting returns one key's current value, upcoming change, and history.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := billing.SettingKey(chi.URLParam(r, "key"))

	def, err := billing.Definition(key)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	value, err := h.Settings.ValueAt(ctx, key, h.Settings.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	upcoming, err := h.Settings.Upcoming(ctx, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	history, err := h.Settings.History(ctx, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	detail := SettingDetailDTO{
		Setting: SettingDTO{
			Key:     string(key),
			Type:    string(def.ValueType),
			Unit:    def.Unit,
			Value:   value.Raw(),
			Default: def.Default,
		},
		History: toSettingVersionDTOs(history),
	}
	if upcoming != nil {
		dto := toSettingVersionDTO(*upcoming)
		detail.Upcoming = &dto
	}

	writeJSON(w, http.StatusOK, detail)
}

// UpsertSetting schedules a new value for a key.
func (h *Handler) UpsertSetting(w http.ResponseWriter, r *http.Request) {
	key := billing.SettingKey(chi.URLParam(r, "key"))

	var req UpsertSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveFrom, err := billing.ParseDateStamp(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from format (use YYYY-MM-DD)", err)
		return
	}

	value, err := billing.DecodeValue(key, req.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.Settings.UpsertVersion(r.Context(), key, value, effectiveFrom, req.Actor); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSettingHistory returns the version history for one key.
func (h *Handler) GetSettingHistory(w http.ResponseWriter, r *http.Request) {
	key := billing.SettingKey(chi.URLParam(r, "key"))

	history, err := h.Settings.History(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingVersionDTOs(history))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all members.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers a new member, Active by default.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	createdAt := billing.Today()
	if req.CreatedAt != "" {
		var err error
		createdAt, err = billing.ParseDateStamp(req.CreatedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid created_at format (use YYYY-MM-DD)", err)
			return
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	user := billing.User{
		ID:            billing.UserID(id),
		Name:          req.Name,
		CreatedAt:     createdAt,
		DefaultStatus: billing.StatusActive,
		CurrentStatus: billing.StatusActive,
	}

	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetUser returns one member.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), billing.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// GetStatus answers the member's status on a date (default today).
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := billing.UserID(chi.URLParam(r, "id"))

	date := billing.Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		var err error
		date, err = billing.ParseDateStamp(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}

	status, approximate, err := h.Membership.StatusOn(r.Context(), userID, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusDTO{
		UserID:      string(userID),
		Date:        date.String(),
		Status:      string(status),
		Approximate: approximate,
	})
}

// AppendStatus records an Active/Inactive flip for a member.
func (h *Handler) AppendStatus(w http.ResponseWriter, r *http.Request) {
	userID := billing.UserID(chi.URLParam(r, "id"))

	var req StatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	status := billing.MembershipStatus(req.Status)
	if status != billing.StatusActive && status != billing.StatusInactive {
		writeError(w, http.StatusBadRequest, "Status must be 'active' or 'inactive'", nil)
		return
	}

	changedAt := time.Now().UTC()
	if req.ChangedAt != "" {
		var err error
		changedAt, err = time.Parse(time.RFC3339, req.ChangedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid changed_at format (use RFC3339)", err)
			return
		}
	}

	// Reject changes for unknown members before touching the log.
	if _, err := h.Store.GetUser(r.Context(), userID); err != nil {
		writeDomainError(w, err)
		return
	}

	change := billing.MembershipStatusChange{
		ID:        billing.ChangeID(uuid.NewString()),
		UserID:    userID,
		Status:    status,
		ChangedAt: changedAt,
		ChangedBy: req.ChangedBy,
	}

	if err := h.Store.AppendChange(r.Context(), change); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to append status change", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// GetPayable returns the itemized payable for a member over a window.
func (h *Handler) GetPayable(w http.ResponseWriter, r *http.Request) {
	userID := billing.UserID(chi.URLParam(r, "id"))

	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	breakdown, err := h.Aggregator.PayableFor(r.Context(), userID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPayableDTO(breakdown))
}

// GetReport returns one member's period report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	userID := billing.UserID(chi.URLParam(r, "id"))

	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	report, err := h.Reports.ForUser(r.Context(), userID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// GetAllReports returns the month-end view: one report per member.
func (h *Handler) GetAllReports(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	reports, err := h.Reports.ForAllUsers(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toReportDTO(rep)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// RecordAttendance marks one member's day and attributes the remark
// and fine effective at the record's date.
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := billing.ParseDateStamp(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	var status *billing.AttendanceStatus
	if req.Status != nil {
		s := billing.AttendanceStatus(*req.Status)
		if s != billing.AttendancePresent && s != billing.AttendanceAbsent {
			writeError(w, http.StatusBadRequest, "Status must be 'present' or 'absent'", nil)
			return
		}
		status = &s
	}

	ctx := r.Context()
	if _, err := h.Store.GetUser(ctx, billing.UserID(req.UserID)); err != nil {
		writeDomainError(w, err)
		return
	}

	remark := billing.ComputeRemark(status, req.IsOpen)
	fine, err := billing.FineFor(ctx, h.Settings, remark, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	rec := billing.AttendanceRecord{
		UserID:     billing.UserID(req.UserID),
		Date:       date,
		Status:     status,
		IsOpen:     req.IsOpen,
		FineAmount: fine,
	}

	if err := h.Store.SaveAttendance(ctx, rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record attendance", err)
		return
	}

	writeJSON(w, http.StatusCreated, AttendanceDTO{
		UserID:     req.UserID,
		Date:       date.String(),
		Status:     req.Status,
		IsOpen:     req.IsOpen,
		Remark:     string(remark),
		FineAmount: fine.String(),
	})
}

// RecordGuestCharge charges a guest meal to the inviter. When no amount
// is given the guest meal price effective at the date applies.
func (h *Handler) RecordGuestCharge(w http.ResponseWriter, r *http.Request) {
	var req GuestChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := billing.ParseDateStamp(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetUser(ctx, billing.UserID(req.InviterID)); err != nil {
		writeDomainError(w, err)
		return
	}

	var amount billing.Money
	if req.Amount != "" {
		amount, err = billing.NewMoneyFromString(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
	} else {
		amount, err = h.Settings.MoneyAt(ctx, billing.KeyGuestMealPrice, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Amount must not be negative", nil)
		return
	}

	charge := billing.GuestCharge{
		ID:        billing.ChangeID(uuid.NewString()),
		InviterID: billing.UserID(req.InviterID),
		Date:      date,
		Amount:    amount,
	}

	if err := h.Store.SaveGuestCharge(ctx, charge); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record guest charge", err)
		return
	}

	writeJSON(w, http.StatusCreated, GuestChargeDTO{
		ID:        string(charge.ID),
		InviterID: req.InviterID,
		Date:      date.String(),
		Amount:    amount.String(),
	})
}

// RecordPayment records money received from a member.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := billing.NewMoneyFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetUser(ctx, billing.UserID(req.UserID)); err != nil {
		writeDomainError(w, err)
		return
	}

	payment := billing.Payment{
		ID:        billing.ChangeID(uuid.NewString()),
		UserID:    billing.UserID(req.UserID),
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.Store.SavePayment(ctx, payment); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentDTO{
		ID:        string(payment.ID),
		UserID:    req.UserID,
		Amount:    amount.String(),
		CreatedAt: payment.CreatedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseWindow reads and validates ?from=&to=. Writes the error response
// itself; callers just bail on ok == false.
func parseWindow(w http.ResponseWriter, r *http.Request) (billing.DateStamp, billing.DateStamp, bool) {
	from, err := billing.ParseDateStamp(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing 'from' (use YYYY-MM-DD)", err)
		return billing.DateStamp{}, billing.DateStamp{}, false
	}
	to, err := billing.ParseDateStamp(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing 'to' (use YYYY-MM-DD)", err)
		return billing.DateStamp{}, billing.DateStamp{}, false
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "'to' must not precede 'from'", nil)
		return billing.DateStamp{}, billing.DateStamp{}, false
	}
	return from, to, true
}

// writeDomainError maps domain error categories onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case billing.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflicting setting interval", err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
