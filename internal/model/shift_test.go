package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodPrevious(t *testing.T) {
	tests := []struct {
		name string
		in   Period
		want Period
	}{
		{"mid year", Period{2025, 6}, Period{2025, 5}},
		{"january wraps to december", Period{2025, 1}, Period{2024, 12}},
		{"february", Period{2025, 2}, Period{2025, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Previous())
		})
	}
}

func TestPeriodOf(t *testing.T) {
	ts := time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, Period{2025, 3}, PeriodOf(ts))
}

func TestShiftEntryOpen(t *testing.T) {
	now := time.Now()

	assert.True(t, ShiftEntry{Start: &now}.Open())
	assert.False(t, ShiftEntry{Start: &now, End: &now}.Open())
	// A permissive OUT-without-IN entry is closed, not open.
	assert.False(t, ShiftEntry{End: &now}.Open())
	assert.False(t, ShiftEntry{}.Open())
}

func TestMonthShardClone(t *testing.T) {
	start := time.Now()
	shard := MonthShard{"alice": {{Start: &start}}}

	clone := shard.Clone()
	clone["alice"] = append(clone["alice"], ShiftEntry{End: &start})

	assert.Len(t, shard["alice"], 1)
	assert.Len(t, clone["alice"], 2)
}
