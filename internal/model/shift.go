package model

import (
	"fmt"
	"time"
)

// ClockAction is the direction of a clock punch.
type ClockAction string

const (
	// ActionIn opens a new shift for an employee.
	ActionIn ClockAction = "IN"
	// ActionOut closes the employee's open shift.
	ActionOut ClockAction = "OUT"
)

// Valid reports whether the action is a known clock direction.
func (a ClockAction) Valid() bool {
	return a == ActionIn || a == ActionOut
}

// ShiftEntry is a single punch pair within a month shard.
// A nil End with a non-nil Start denotes an open shift (currently clocked in).
// An entry with a nil Start is an OUT punch recorded without a matching IN;
// those are accepted on purpose so clock corrections are never blocked.
type ShiftEntry struct {
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	Location string     `json:"location,omitempty"`
	Note     string     `json:"note,omitempty"`
}

// Open reports whether the entry denotes an employee currently clocked in.
func (e ShiftEntry) Open() bool {
	return e.Start != nil && e.End == nil
}

// MonthShard maps employee name to their append-ordered shift entries for
// one (tenant, year, month). Entries are append-ordered, not sorted by time;
// at most the last entry per employee may be open.
type MonthShard map[string][]ShiftEntry

// Clone returns a deep copy of the shard.
func (s MonthShard) Clone() MonthShard {
	out := make(MonthShard, len(s))
	for employee, entries := range s {
		copied := make([]ShiftEntry, len(entries))
		copy(copied, entries)
		out[employee] = copied
	}
	return out
}

// EmployeeStatus is the current clock state of a single employee.
type EmployeeStatus struct {
	State     string     `json:"state"`
	StartTime *time.Time `json:"start_time,omitempty"`
}

// Period identifies a calendar (year, month) pair.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Previous returns the immediately preceding calendar month, decrementing
// the year when the month wraps past January.
func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// String renders the period as "YYYY-MM".
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
