package domain

import (
	"fmt"
	"time"
)

// SlotKey identifies a time slot by value. Orders reference slots this
// way; many orders share one slot.
type SlotKey struct {
	Date      string `json:"date"`       // YYYY-MM-DD
	StartTime string `json:"start_time"` // HH:MM, 24h
}

func (k SlotKey) String() string {
	return k.Date + " " + k.StartTime
}

// StartsAt resolves the slot's wall-clock start in the given location.
func (k SlotKey) StartsAt(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", k.Date+" "+k.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot start %q: %w", k.String(), err)
	}
	return t, nil
}

// TimeSlot carries fixed capacity for pickup/delivery bookings.
// Invariant: 0 <= CurrentItems <= MaxItems and 0 <= CurrentOrders <= MaxOrders.
// The counters only move through the capacity ledger's atomic reserve/release.
type TimeSlot struct {
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	MaxItems      int    `json:"max_items"`
	CurrentItems  int    `json:"current_items"`
	MaxOrders     int    `json:"max_orders"`
	CurrentOrders int    `json:"current_orders"`
}

func (s TimeSlot) Key() SlotKey {
	return SlotKey{Date: s.Date, StartTime: s.StartTime}
}

// RemainingItems is the item headroom left in the slot.
func (s TimeSlot) RemainingItems() int {
	return s.MaxItems - s.CurrentItems
}

// Fits reports whether the slot can still take one more order carrying
// itemCount items. Reserve uses the same formula server-side; keep them
// in sync.
func (s TimeSlot) Fits(itemCount int) bool {
	return s.CurrentItems+itemCount <= s.MaxItems && s.CurrentOrders+1 <= s.MaxOrders
}
