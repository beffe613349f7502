package scheduler

import "time"

// ScheduleEvent is one pending trigger in the scheduler heap.
type ScheduleEvent struct {
	JobID     string
	TriggerAt time.Time
	// gen identifies the registration that installed the trigger, so a
	// fire racing with a re-registration can tell it is stale.
	gen uint64
}

// Preset is a named cron expression offered to users.
type Preset struct {
	Label      string `json:"label"`
	Expression string `json:"expression"`
}

// Presets are the common schedules offered when creating a job.
var Presets = []Preset{
	{Label: "Every hour", Expression: "0 * * * *"},
	{Label: "Every 4 hours", Expression: "0 */4 * * *"},
	{Label: "Every day at midnight", Expression: "0 0 * * *"},
	{Label: "Every day at 6 AM", Expression: "0 6 * * *"},
	{Label: "Every Monday at 9 AM", Expression: "0 9 * * 1"},
	{Label: "Every week on Sunday", Expression: "0 0 * * 0"},
	{Label: "First day of month", Expression: "0 0 1 * *"},
}
