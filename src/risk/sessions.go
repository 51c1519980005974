package risk

import (
	"time"

	"signalexecutor/src/model"
)

// ist is the venue clock; both supported venues trade on Indian Standard Time.
var ist = time.FixedZone("IST", 5*3600+30*60)

// sessionWindow is a venue's trading window as minutes from midnight IST.
type sessionWindow struct {
	openMinute  int
	closeMinute int
}

var venueWindows = map[string]sessionWindow{
	model.VenueNFO: {openMinute: 9*60 + 15, closeMinute: 15*60 + 30}, // 09:15-15:30
	model.VenueMCX: {openMinute: 9 * 60, closeMinute: 23*60 + 30},    // 09:00-23:30
}

// InVenueTime converts to the venue clock.
func InVenueTime(t time.Time) time.Time {
	return t.In(ist)
}

// IsMarketOpen reports whether the venue accepts orders at the given instant.
// Unknown venues are treated as closed so nothing is ever submitted blind.
func IsMarketOpen(venue string, now time.Time) bool {
	w, ok := venueWindows[venue]
	if !ok {
		return false
	}

	local := InVenueTime(now)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	return minute >= w.openMinute && minute < w.closeMinute
}

// IsAtSessionClose reports whether now falls inside the final stretch before
// the venue close. The force-flatten job keys off this window so it runs once
// at the boundary, not repeatedly through the day.
func IsAtSessionClose(venue string, now time.Time, within time.Duration) bool {
	w, ok := venueWindows[venue]
	if !ok {
		return false
	}

	local := InVenueTime(now)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	lead := int(within.Minutes())
	if lead <= 0 {
		lead = 1
	}
	return minute >= w.closeMinute-lead && minute < w.closeMinute
}

// NextOpen returns the next instant the venue opens at or after now.
func NextOpen(venue string, now time.Time) time.Time {
	w, ok := venueWindows[venue]
	if !ok {
		return now
	}

	local := InVenueTime(now)
	candidate := time.Date(local.Year(), local.Month(), local.Day(),
		w.openMinute/60, w.openMinute%60, 0, 0, ist)

	for !candidate.After(local) || candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
