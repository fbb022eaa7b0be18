package workflow

import "time"

// ReminderCadence is the wait before each reminder, indexed by the number of
// reminders already sent. Counts past the end reuse the last interval.
var ReminderCadence = []time.Duration{
	15 * time.Minute,
	2 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// MaxReminders is the reminder budget; a due item at this count escalates.
const MaxReminders = 5

func NextReminderDelay(sent int) time.Duration {
	if sent < 0 {
		sent = 0
	}
	if sent >= len(ReminderCadence) {
		return ReminderCadence[len(ReminderCadence)-1]
	}
	return ReminderCadence[sent]
}

// FirstReminderDue is when a freshly queued item gets its first reminder.
func FirstReminderDue(now time.Time) time.Time {
	return now.Add(NextReminderDelay(0))
}
