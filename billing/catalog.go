/*
catalog.go - Static setting catalog

PURPOSE:
  Declares every setting key the engine knows about, its value type,
  unit, and documented default. The catalog is owned by the system and
  read-only to the engine: versions carry values, the catalog carries
  meaning.

DEFAULT RESOLUTION:
  ValueAt never fails for a cataloged key. When no version covers the
  queried date, the catalog's default applies: zero for numbers, false
  for booleans, the documented default for time-of-day, empty string
  for text. Settings must always resolve to some value.
*/
package billing

// SettingKey identifies one policy value in the catalog.
type SettingKey string

const (
	// KeyMonthlyExpense is the monthly base expense per member head.
	// Prorated with a flat /30 daily divisor regardless of calendar
	// month length (documented simplification, not a bug).
	KeyMonthlyExpense SettingKey = "monthly_expense_per_head"

	// KeyGuestMealPrice is the price charged per guest meal.
	KeyGuestMealPrice SettingKey = "guest_meal_price"

	// KeyUnclosedFine penalizes a booked meal the member did not attend.
	KeyUnclosedFine SettingKey = "unclosed_fine"

	// KeyUnopenedFine penalizes attending a meal the member had not booked.
	KeyUnopenedFine SettingKey = "unopened_fine"

	// KeyMealClosingTime is the daily cutoff after which a meal can no
	// longer be opened or closed for the following day.
	KeyMealClosingTime SettingKey = "meal_closing_time"

	// KeyFinesEnabled toggles fine attribution system-wide.
	KeyFinesEnabled SettingKey = "fines_enabled"
)

// SettingDefinition describes one catalog entry.
type SettingDefinition struct {
	Key       SettingKey
	ValueType ValueType
	Unit      string // display hint: "currency", "HH:MM", ""
	Default   string // raw storage form of the documented default
}

// Catalog is the static setting reference table. Rarely mutated;
// persisted as a reference table so reports can join on it, but this
// in-code copy is the source of truth for types and defaults.
var Catalog = map[SettingKey]SettingDefinition{
	KeyMonthlyExpense:  {Key: KeyMonthlyExpense, ValueType: ValueNumber, Unit: "currency", Default: "0"},
	KeyGuestMealPrice:  {Key: KeyGuestMealPrice, ValueType: ValueNumber, Unit: "currency", Default: "0"},
	KeyUnclosedFine:    {Key: KeyUnclosedFine, ValueType: ValueNumber, Unit: "currency", Default: "0"},
	KeyUnopenedFine:    {Key: KeyUnopenedFine, ValueType: ValueNumber, Unit: "currency", Default: "0"},
	KeyMealClosingTime: {Key: KeyMealClosingTime, ValueType: ValueTime, Unit: "HH:MM", Default: "21:00"},
	KeyFinesEnabled:    {Key: KeyFinesEnabled, ValueType: ValueBoolean, Unit: "", Default: "false"},
}

// Definition looks up a catalog entry.
func Definition(key SettingKey) (SettingDefinition, error) {
	def, ok := Catalog[key]
	if !ok {
		return SettingDefinition{}, &NotFoundError{Kind: "setting", ID: string(key)}
	}
	return def, nil
}

// CatalogKeys returns every key in stable order.
func CatalogKeys() []SettingKey {
	return []SettingKey{
		KeyMonthlyExpense,
		KeyGuestMealPrice,
		KeyUnclosedFine,
		KeyUnopenedFine,
		KeyMealClosingTime,
		KeyFinesEnabled,
	}
}
