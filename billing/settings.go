/*
settings.go - TemporalSettingsStore

PURPOSE:
  Policy values (fine amounts, guest meal price, monthly base expense,
  meal closing cutoff) change over time, and a fine amount effective
  next month must not retroactively alter past bills. A single mutable
  settings row cannot give that guarantee, so every change becomes a new
  SettingVersion with an [EffectiveFrom, EffectiveTo] interval; the
  value of a key on any date is the version whose interval covers it.

INTERVAL INVARIANTS:
  1. For one key, intervals never overlap
  2. At most one version per key is open (EffectiveTo = nil) at a time
  3. Inserting a later version closes the open one at newFrom - 1 day
  4. Versions are never deleted (full audit trail)

SCHEDULED CHANGES:
  A version may be inserted with EffectiveFrom in the future. It is not
  active until that date arrives; Upcoming surfaces it for display.

SEE ALSO:
  - codec.go: value validation and storage form
  - catalog.go: declared types and defaults
  - store.go: SettingVersionTxRepository contract
*/
package billing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Settings answers "what was the value of key K on date D?" against the
// versioned history, and records new versions.
type Settings struct {
	repo SettingVersionTxRepository

	// Now is overridable for tests; defaults to Today.
	Now func() DateStamp
}

func NewSettings(repo SettingVersionTxRepository) *Settings {
	return &Settings{repo: repo, Now: Today}
}

// =============================================================================
// WRITE PATH
// =============================================================================

// UpsertVersion validates the value and appends a new open-ended
// version effective from the given date, closing the previously open
// version in the same storage transaction.
//
// Idempotence: re-submitting an identical (key, value, effectiveFrom)
// is a no-op success, not a duplicate row. A different value at an
// already-used effectiveFrom, or any intersection with a closed
// interval, is an OverlapError.
func (s *Settings) UpsertVersion(ctx context.Context, key SettingKey, value TypedValue, effectiveFrom DateStamp, actor string) error {
	if _, err := EncodeValue(key, value); err != nil {
		return err
	}

	return s.repo.WithTx(ctx, func(repo SettingVersionRepository) error {
		versions, err := repo.ListByKey(ctx, key)
		if err != nil {
			return err
		}

		var open *SettingVersion
		for i := range versions {
			v := versions[i]
			if v.EffectiveFrom.Equal(effectiveFrom) {
				if v.Value.Equal(value) {
					// Retry of an identical insert.
					return nil
				}
				return &OverlapError{Key: key, EffectiveFrom: effectiveFrom, ConflictID: v.ID, ConflictFrom: v.EffectiveFrom}
			}
			if v.Open() {
				open = &versions[i]
			}
		}

		if open != nil {
			if open.EffectiveFrom.After(effectiveFrom) {
				// The open interval already covers effectiveFrom onward.
				return &OverlapError{Key: key, EffectiveFrom: effectiveFrom, ConflictID: open.ID, ConflictFrom: open.EffectiveFrom}
			}
			if err := repo.Close(ctx, open.ID, effectiveFrom.AddDays(-1)); err != nil {
				return err
			}
		}

		// Closed intervals must end strictly before the new version
		// starts; ending exactly the day before is adjacency, not overlap.
		for _, v := range versions {
			if open != nil && v.ID == open.ID {
				continue
			}
			if v.EffectiveTo != nil && v.EffectiveTo.AfterOrEqual(effectiveFrom) {
				return &OverlapError{Key: key, EffectiveFrom: effectiveFrom, ConflictID: v.ID, ConflictFrom: v.EffectiveFrom}
			}
		}

		return repo.Insert(ctx, SettingVersion{
			ID:            VersionID(uuid.NewString()),
			Key:           key,
			Value:         value,
			EffectiveFrom: effectiveFrom,
			CreatedBy:     actor,
			CreatedAt:     time.Now().UTC(),
		})
	})
}

// =============================================================================
// READ PATH
// =============================================================================

// ValueAt returns the value of a key on a date. Among versions whose
// interval covers the date (more than one can match only after a prior
// invariant bug) the most recent EffectiveFrom wins. A key with no
// covering version resolves to the catalog default rather than failing.
func (s *Settings) ValueAt(ctx context.Context, key SettingKey, date DateStamp) (TypedValue, error) {
	if _, err := Definition(key); err != nil {
		return TypedValue{}, err
	}

	versions, err := s.repo.ListByKey(ctx, key)
	if err != nil {
		return TypedValue{}, err
	}

	var best *SettingVersion
	for i := range versions {
		v := &versions[i]
		if !v.Covers(date) {
			continue
		}
		if best == nil || v.EffectiveFrom.After(best.EffectiveFrom) {
			best = v
		}
	}
	if best != nil {
		return best.Value, nil
	}
	return DefaultValue(key)
}

// MoneyAt is ValueAt for numeric keys, returned as Money.
func (s *Settings) MoneyAt(ctx context.Context, key SettingKey, date DateStamp) (Money, error) {
	v, err := s.ValueAt(ctx, key, date)
	if err != nil {
		return Money{}, err
	}
	return v.Money(), nil
}

// Upcoming returns the nearest scheduled version with EffectiveFrom
// after today, or nil when no change is scheduled.
func (s *Settings) Upcoming(ctx context.Context, key SettingKey) (*SettingVersion, error) {
	if _, err := Definition(key); err != nil {
		return nil, err
	}

	versions, err := s.repo.ListByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	today := s.Now()
	var next *SettingVersion
	for i := range versions {
		v := &versions[i]
		if !v.EffectiveFrom.After(today) {
			continue
		}
		if next == nil || v.EffectiveFrom.Before(next.EffectiveFrom) {
			next = v
		}
	}
	return next, nil
}

// History returns versions newest EffectiveFrom first. An empty key
// returns the merged history across all keys.
func (s *Settings) History(ctx context.Context, key SettingKey) ([]SettingVersion, error) {
	var (
		versions []SettingVersion
		err      error
	)
	if key == "" {
		versions, err = s.repo.ListAll(ctx)
	} else {
		if _, derr := Definition(key); derr != nil {
			return nil, derr
		}
		versions, err = s.repo.ListByKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].EffectiveFrom.After(versions[j].EffectiveFrom)
	})
	return versions, nil
}
