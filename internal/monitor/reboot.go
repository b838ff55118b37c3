package monitor

import "time"

// NextReboot returns the first restart slot strictly after now. Slots
// start at hour:minute today and repeat every intervalMinutes until the
// same time tomorrow; when none is left today the answer is the base time
// tomorrow.
func NextReboot(now time.Time, hour, minute, intervalMinutes int) time.Time {
	base := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if intervalMinutes > 0 {
		step := time.Duration(intervalMinutes) * time.Minute
		end := base.Add(24 * time.Hour)
		for t := base; t.Before(end); t = t.Add(step) {
			if t.After(now) {
				return t
			}
		}
	} else if base.After(now) {
		return base
	}
	return base.AddDate(0, 0, 1)
}
