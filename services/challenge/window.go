package challenge

import "time"

// DeriveStatus is the single authority for a challenge's logical status.
// archived is terminal. Otherwise the window decides: before start is draft,
// [start, end] inclusive is active, after end is ended.
func DeriveStatus(now, start, end time.Time, stored Status) Status {
	if stored == StatusArchived {
		return StatusArchived
	}
	if now.Before(start) {
		return StatusDraft
	}
	if !now.After(end) {
		return StatusActive
	}
	return StatusEnded
}
