// Package store provides in-memory repository implementations for
// tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/messbook/billing-engine/billing"
)

// =============================================================================
// MEMORY - In-memory implementation of every engine repository
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	versions map[billing.SettingKey][]billing.SettingVersion
	changes  map[billing.UserID][]billing.MembershipStatusChange
	users    map[billing.UserID]billing.User
	records  map[billing.UserID][]billing.AttendanceRecord
	guests   map[billing.UserID][]billing.GuestCharge
	payments map[billing.UserID][]billing.Payment
}

func NewMemory() *Memory {
	return &Memory{
		versions: make(map[billing.SettingKey][]billing.SettingVersion),
		changes:  make(map[billing.UserID][]billing.MembershipStatusChange),
		users:    make(map[billing.UserID]billing.User),
		records:  make(map[billing.UserID][]billing.AttendanceRecord),
		guests:   make(map[billing.UserID][]billing.GuestCharge),
		payments: make(map[billing.UserID][]billing.Payment),
	}
}

// =============================================================================
// SETTING VERSIONS (billing.SettingVersionTxRepository)
// =============================================================================

func (m *Memory) Insert(_ context.Context, v billing.SettingVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(v)
	return nil
}

func (m *Memory) insertLocked(v billing.SettingVersion) {
	vs := append(m.versions[v.Key], v)
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].EffectiveFrom.After(vs[j].EffectiveFrom)
	})
	m.versions[v.Key] = vs
}

func (m *Memory) Close(_ context.Context, id billing.VersionID, effectiveTo billing.DateStamp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, vs := range m.versions {
		for i := range vs {
			if vs[i].ID == id {
				to := effectiveTo
				vs[i].EffectiveTo = &to
				m.versions[key] = vs
				return nil
			}
		}
	}
	return &billing.NotFoundError{Kind: "setting version", ID: string(id)}
}

func (m *Memory) ListByKey(_ context.Context, key billing.SettingKey) ([]billing.SettingVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.SettingVersion, len(m.versions[key]))
	copy(out, m.versions[key])
	return out, nil
}

func (m *Memory) ListAll(_ context.Context) ([]billing.SettingVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.SettingVersion
	for _, vs := range m.versions {
		out = append(out, vs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveFrom.After(out[j].EffectiveFrom)
	})
	return out, nil
}

// WithTx simulates a transaction with snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(billing.SettingVersionRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[billing.SettingKey][]billing.SettingVersion, len(m.versions))
	for k, vs := range m.versions {
		snapshot[k] = append([]billing.SettingVersion{}, vs...)
	}

	if err := fn(&memoryTxView{parent: m}); err != nil {
		m.versions = snapshot
		return err
	}
	return nil
}

// memoryTxView performs lock-free writes under the parent's held lock.
type memoryTxView struct {
	parent *Memory
}

func (tv *memoryTxView) Insert(_ context.Context, v billing.SettingVersion) error {
	tv.parent.insertLocked(v)
	return nil
}

func (tv *memoryTxView) Close(_ context.Context, id billing.VersionID, effectiveTo billing.DateStamp) error {
	for key, vs := range tv.parent.versions {
		for i := range vs {
			if vs[i].ID == id {
				to := effectiveTo
				vs[i].EffectiveTo = &to
				tv.parent.versions[key] = vs
				return nil
			}
		}
	}
	return &billing.NotFoundError{Kind: "setting version", ID: string(id)}
}

func (tv *memoryTxView) ListByKey(_ context.Context, key billing.SettingKey) ([]billing.SettingVersion, error) {
	out := make([]billing.SettingVersion, len(tv.parent.versions[key]))
	copy(out, tv.parent.versions[key])
	return out, nil
}

func (tv *memoryTxView) ListAll(ctx context.Context) ([]billing.SettingVersion, error) {
	var out []billing.SettingVersion
	for _, vs := range tv.parent.versions {
		out = append(out, vs...)
	}
	return out, nil
}

// =============================================================================
// USERS (billing.UserDirectory)
// =============================================================================

func (m *Memory) PutUser(u billing.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) GetUser(_ context.Context, id billing.UserID) (billing.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return billing.User{}, &billing.NotFoundError{Kind: "user", ID: string(id)}
	}
	return u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]billing.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// STATUS CHANGES (billing.StatusChangeRepository)
// =============================================================================

func (m *Memory) AppendChange(_ context.Context, change billing.MembershipStatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := append(m.changes[change.UserID], change)
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].ChangedAt.Before(cs[j].ChangedAt)
	})
	m.changes[change.UserID] = cs
	if u, ok := m.users[change.UserID]; ok {
		u.CurrentStatus = change.Status
		m.users[change.UserID] = u
	}
	return nil
}

func (m *Memory) ListChanges(_ context.Context, userID billing.UserID) ([]billing.MembershipStatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.MembershipStatusChange, len(m.changes[userID]))
	copy(out, m.changes[userID])
	return out, nil
}

// =============================================================================
// EXTERNAL RECORDS (readers + test seeding)
// =============================================================================

func (m *Memory) PutAttendance(rec billing.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID] = append(m.records[rec.UserID], rec)
}

func (m *Memory) ListAttendance(_ context.Context, userID billing.UserID, from, to billing.DateStamp) ([]billing.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.AttendanceRecord
	for _, rec := range m.records[userID] {
		if rec.Date.AfterOrEqual(from) && rec.Date.BeforeOrEqual(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) PutGuestCharge(ch billing.GuestCharge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guests[ch.InviterID] = append(m.guests[ch.InviterID], ch)
}

func (m *Memory) ListGuestCharges(_ context.Context, inviterID billing.UserID, from, to billing.DateStamp) ([]billing.GuestCharge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.GuestCharge
	for _, ch := range m.guests[inviterID] {
		if ch.Date.AfterOrEqual(from) && ch.Date.BeforeOrEqual(to) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *Memory) PutPayment(p billing.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.UserID] = append(m.payments[p.UserID], p)
}

func (m *Memory) ListPayments(_ context.Context, userID billing.UserID) ([]billing.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.Payment, len(m.payments[userID]))
	copy(out, m.payments[userID])
	return out, nil
}

// =============================================================================
// WRITE PATHS (api.Store parity with the SQLite store)
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u billing.User) error {
	m.PutUser(u)
	return nil
}

// SaveAttendance upserts by (user, date): re-marking a day replaces the
// earlier record, matching the SQLite store.
func (m *Memory) SaveAttendance(_ context.Context, rec billing.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.records[rec.UserID]
	for i := range records {
		if records[i].Date.Equal(rec.Date) {
			records[i] = rec
			return nil
		}
	}
	m.records[rec.UserID] = append(records, rec)
	return nil
}

func (m *Memory) SaveGuestCharge(_ context.Context, ch billing.GuestCharge) error {
	m.PutGuestCharge(ch)
	return nil
}

func (m *Memory) SavePayment(_ context.Context, p billing.Payment) error {
	m.PutPayment(p)
	return nil
}
