/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every repository the billing engine consumes
  (SettingVersionTxRepository, UserDirectory, StatusChangeRepository,
  AttendanceReader, GuestChargeReader, PaymentReader) plus the write
  paths the API layer needs. In production the same patterns apply to
  PostgreSQL with only minor dialect differences.

APPEND-MOSTLY ENFORCEMENT:
  - setting_versions: INSERT plus a single UPDATE shape that sets
    effective_to on an open row. No DELETE. The close+insert pair runs
    inside one transaction via WithTx, so no instant exists with two
    open versions of one key.
  - status_changes: INSERT only.

KEY TABLES:
  setting_definitions  Reference catalog (seeded from billing.Catalog)
  setting_versions     Time-versioned policy values
  users                Minimal member projection (creation, statuses)
  status_changes       Append-only membership log
  attendance           Externally-owned; read + upsert for the API
  guest_charges        Externally-owned; read + insert for the API
  payments             Externally-owned; read + insert for the API

WAL MODE:
  Opened with WAL for multi-reader concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/messbook.db")
  settings := billing.NewSettings(store)

SEE ALSO:
  - billing/store.go: interface definitions
  - billing/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/messbook/billing-engine/billing"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// CloseDB closes the database connection.
func (s *Store) CloseDB() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Setting catalog (reference table)
	CREATE TABLE IF NOT EXISTS setting_definitions (
		key TEXT PRIMARY KEY,
		value_type TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		default_value TEXT NOT NULL DEFAULT ''
	);

	-- Time-versioned policy values (append-mostly; the only UPDATE
	-- permitted sets effective_to when a version is superseded)
	CREATE TABLE IF NOT EXISTS setting_versions (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_key_from
		ON setting_versions(key, effective_from);
	CREATE INDEX IF NOT EXISTS idx_versions_key
		ON setting_versions(key, effective_from DESC);
	-- Lookup of the single open version per key (hot path on upsert)
	CREATE INDEX IF NOT EXISTS idx_versions_open
		ON setting_versions(key) WHERE effective_to IS NULL;

	-- Members
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		default_status TEXT NOT NULL,
		current_status TEXT NOT NULL
	);

	-- Append-only membership status log
	CREATE TABLE IF NOT EXISTS status_changes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		changed_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_status_changes_user
		ON status_changes(user_id, changed_at);

	-- Externally-owned tables, persisted locally for the collaborator API
	CREATE TABLE IF NOT EXISTS attendance (
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT,
		is_open BOOLEAN NOT NULL DEFAULT FALSE,
		fine_amount TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, date)
	);

	CREATE TABLE IF NOT EXISTS guest_charges (
		id TEXT PRIMARY KEY,
		inviter_id TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_guest_charges_inviter
		ON guest_charges(inviter_id, date);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_user
		ON payments(user_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.seedCatalog()
}

// seedCatalog mirrors the in-code catalog into the reference table so
// reports can join on it.
func (s *Store) seedCatalog() error {
	stmt := `
		INSERT INTO setting_definitions (key, value_type, unit, default_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_type = excluded.value_type,
			unit = excluded.unit,
			default_value = excluded.default_value
	`
	for _, key := range billing.CatalogKeys() {
		def := billing.Catalog[key]
		if _, err := s.db.Exec(stmt, string(def.Key), string(def.ValueType), def.Unit, def.Default); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	execer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// SETTING VERSIONS (billing.SettingVersionTxRepository)
// =============================================================================

func (s *Store) Insert(ctx context.Context, v billing.SettingVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertVersion(ctx, s.db, v)
}

func insertVersion(ctx context.Context, db execer, v billing.SettingVersion) error {
	var effectiveTo *string
	if v.EffectiveTo != nil {
		to := v.EffectiveTo.String()
		effectiveTo = &to
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO setting_versions (id, key, value, effective_from, effective_to, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(v.ID),
		string(v.Key),
		v.Value.Raw(),
		v.EffectiveFrom.String(),
		effectiveTo,
		v.CreatedBy,
		v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert setting version: %w", err)
	}
	return nil
}

// Close sets effective_to on an open version. Satisfies
// billing.SettingVersionRepository.
func (s *Store) Close(ctx context.Context, id billing.VersionID, effectiveTo billing.DateStamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeVersion(ctx, s.db, id, effectiveTo)
}

func closeVersion(ctx context.Context, db execer, id billing.VersionID, effectiveTo billing.DateStamp) error {
	res, err := db.ExecContext(ctx,
		`UPDATE setting_versions SET effective_to = ? WHERE id = ? AND effective_to IS NULL`,
		effectiveTo.String(), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to close setting version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &billing.NotFoundError{Kind: "setting version", ID: string(id)}
	}
	return nil
}

func (s *Store) ListByKey(ctx context.Context, key billing.SettingKey) ([]billing.SettingVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listVersions(ctx, s.db, `
		SELECT id, key, value, effective_from, effective_to, created_by, created_at
		FROM setting_versions
		WHERE key = ?
		ORDER BY effective_from DESC`, string(key))
}

func (s *Store) ListAll(ctx context.Context) ([]billing.SettingVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listVersions(ctx, s.db, `
		SELECT id, key, value, effective_from, effective_to, created_by, created_at
		FROM setting_versions
		ORDER BY effective_from DESC, key ASC`)
}

func listVersions(ctx context.Context, db querier, query string, args ...any) ([]billing.SettingVersion, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query setting versions: %w", err)
	}
	defer rows.Close()

	var versions []billing.SettingVersion
	for rows.Next() {
		var (
			v             billing.SettingVersion
			id, key, raw  string
			effectiveFrom string
			effectiveTo   sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&id, &key, &raw, &effectiveFrom, &effectiveTo, &v.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting version: %w", err)
		}

		v.ID = billing.VersionID(id)
		v.Key = billing.SettingKey(key)
		value, err := billing.DecodeValue(v.Key, raw)
		if err != nil {
			return nil, err
		}
		v.Value = value
		v.EffectiveFrom, _ = billing.ParseDateStamp(effectiveFrom)
		if effectiveTo.Valid {
			to, _ := billing.ParseDateStamp(effectiveTo.String)
			v.EffectiveTo = &to
		}
		v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// WithTx executes fn within one database transaction. The engine uses
// this for the close-previous + insert-new version sequence.
func (s *Store) WithTx(ctx context.Context, fn func(billing.SettingVersionRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txRepo{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txRepo runs repository operations against an open transaction. It
// must not touch the parent's mutex: the caller holds it.
type txRepo struct {
	tx *sql.Tx
}

func (t *txRepo) Insert(ctx context.Context, v billing.SettingVersion) error {
	return insertVersion(ctx, t.tx, v)
}

func (t *txRepo) Close(ctx context.Context, id billing.VersionID, effectiveTo billing.DateStamp) error {
	return closeVersion(ctx, t.tx, id, effectiveTo)
}

func (t *txRepo) ListByKey(ctx context.Context, key billing.SettingKey) ([]billing.SettingVersion, error) {
	return listVersions(ctx, t.tx, `
		SELECT id, key, value, effective_from, effective_to, created_by, created_at
		FROM setting_versions
		WHERE key = ?
		ORDER BY effective_from DESC`, string(key))
}

func (t *txRepo) ListAll(ctx context.Context) ([]billing.SettingVersion, error) {
	return listVersions(ctx, t.tx, `
		SELECT id, key, value, effective_from, effective_to, created_by, created_at
		FROM setting_versions
		ORDER BY effective_from DESC, key ASC`)
}

// =============================================================================
// USERS (billing.UserDirectory)
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u billing.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, created_at, default_status, current_status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			current_status = excluded.current_status`,
		string(u.ID), u.Name, u.CreatedAt.String(),
		string(u.DefaultStatus), string(u.CurrentStatus),
	)
	return err
}

func (s *Store) GetUser(ctx context.Context, id billing.UserID) (billing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		u                     billing.User
		uid, createdAt        string
		defStatus, currStatus string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, default_status, current_status FROM users WHERE id = ?`,
		string(id),
	).Scan(&uid, &u.Name, &createdAt, &defStatus, &currStatus)

	if err == sql.ErrNoRows {
		return billing.User{}, &billing.NotFoundError{Kind: "user", ID: string(id)}
	}
	if err != nil {
		return billing.User{}, err
	}

	u.ID = billing.UserID(uid)
	u.CreatedAt, _ = billing.ParseDateStamp(createdAt)
	u.DefaultStatus = billing.MembershipStatus(defStatus)
	u.CurrentStatus = billing.MembershipStatus(currStatus)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]billing.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, default_status, current_status FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []billing.User
	for rows.Next() {
		var (
			u                     billing.User
			uid, createdAt        string
			defStatus, currStatus string
		)
		if err := rows.Scan(&uid, &u.Name, &createdAt, &defStatus, &currStatus); err != nil {
			return nil, err
		}
		u.ID = billing.UserID(uid)
		u.CreatedAt, _ = billing.ParseDateStamp(createdAt)
		u.DefaultStatus = billing.MembershipStatus(defStatus)
		u.CurrentStatus = billing.MembershipStatus(currStatus)
		users = append(users, u)
	}
	return users, rows.Err()
}

// =============================================================================
// STATUS CHANGES (billing.StatusChangeRepository)
// =============================================================================

// AppendChange records one status transition and keeps the
// denormalized current_status on the user row in step, atomically.
func (s *Store) AppendChange(ctx context.Context, change billing.MembershipStatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO status_changes (id, user_id, status, changed_at, changed_by)
		VALUES (?, ?, ?, ?, ?)`,
		string(change.ID), string(change.UserID), string(change.Status),
		change.ChangedAt.UTC().Format(time.RFC3339), change.ChangedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to append status change: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE users SET current_status = ? WHERE id = ?`,
		string(change.Status), string(change.UserID),
	); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) ListChanges(ctx context.Context, userID billing.UserID) ([]billing.MembershipStatusChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, status, changed_at, changed_by
		FROM status_changes
		WHERE user_id = ?
		ORDER BY changed_at ASC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []billing.MembershipStatusChange
	for rows.Next() {
		var (
			c              billing.MembershipStatusChange
			id, uid, state string
			changedAt      string
		)
		if err := rows.Scan(&id, &uid, &state, &changedAt, &c.ChangedBy); err != nil {
			return nil, err
		}
		c.ID = billing.ChangeID(id)
		c.UserID = billing.UserID(uid)
		c.Status = billing.MembershipStatus(state)
		c.ChangedAt, _ = time.Parse(time.RFC3339, changedAt)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// =============================================================================
// ATTENDANCE (billing.AttendanceReader + API write path)
// =============================================================================

// SaveAttendance upserts the day's record for a user. One row per
// (user, date); re-marking a day replaces status, open flag, and fine.
func (s *Store) SaveAttendance(ctx context.Context, rec billing.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status *string
	if rec.Status != nil {
		v := string(*rec.Status)
		status = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance (user_id, date, status, is_open, fine_amount, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			status = excluded.status,
			is_open = excluded.is_open,
			fine_amount = excluded.fine_amount,
			updated_at = excluded.updated_at`,
		string(rec.UserID), rec.Date.String(), status, rec.IsOpen,
		rec.FineAmount.String(), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListAttendance(ctx context.Context, userID billing.UserID, from, to billing.DateStamp) ([]billing.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, date, status, is_open, fine_amount
		FROM attendance
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		string(userID), from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []billing.AttendanceRecord
	for rows.Next() {
		var (
			rec       billing.AttendanceRecord
			uid, date string
			status    sql.NullString
			fine      string
		)
		if err := rows.Scan(&uid, &date, &status, &rec.IsOpen, &fine); err != nil {
			return nil, err
		}
		rec.UserID = billing.UserID(uid)
		rec.Date, _ = billing.ParseDateStamp(date)
		if status.Valid {
			st := billing.AttendanceStatus(status.String)
			rec.Status = &st
		}
		rec.FineAmount, _ = billing.NewMoneyFromString(fine)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// GUEST CHARGES (billing.GuestChargeReader + API write path)
// =============================================================================

func (s *Store) SaveGuestCharge(ctx context.Context, ch billing.GuestCharge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guest_charges (id, inviter_id, date, amount)
		VALUES (?, ?, ?, ?)`,
		string(ch.ID), string(ch.InviterID), ch.Date.String(), ch.Amount.String())
	return err
}

func (s *Store) ListGuestCharges(ctx context.Context, inviterID billing.UserID, from, to billing.DateStamp) ([]billing.GuestCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, inviter_id, date, amount
		FROM guest_charges
		WHERE inviter_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`,
		string(inviterID), from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []billing.GuestCharge
	for rows.Next() {
		var (
			ch                billing.GuestCharge
			id, inviter, date string
			amount            string
		)
		if err := rows.Scan(&id, &inviter, &date, &amount); err != nil {
			return nil, err
		}
		ch.ID = billing.ChangeID(id)
		ch.InviterID = billing.UserID(inviter)
		ch.Date, _ = billing.ParseDateStamp(date)
		ch.Amount, _ = billing.NewMoneyFromString(amount)
		charges = append(charges, ch)
	}
	return charges, rows.Err()
}

// =============================================================================
// PAYMENTS (billing.PaymentReader + API write path)
// =============================================================================

func (s *Store) SavePayment(ctx context.Context, p billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, amount, created_at)
		VALUES (?, ?, ?, ?)`,
		string(p.ID), string(p.UserID), p.Amount.String(),
		p.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ListPayments(ctx context.Context, userID billing.UserID) ([]billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, created_at
		FROM payments
		WHERE user_id = ?
		ORDER BY created_at ASC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []billing.Payment
	for rows.Next() {
		var (
			p               billing.Payment
			id, uid, amount string
			createdAt       string
		)
		if err := rows.Scan(&id, &uid, &amount, &createdAt); err != nil {
			return nil, err
		}
		p.ID = billing.ChangeID(id)
		p.UserID = billing.UserID(uid)
		p.Amount, _ = billing.NewMoneyFromString(amount)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
