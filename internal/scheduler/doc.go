// Package scheduler runs recurring backup jobs. Each enabled job owns one
// trigger in a min-heap ordered by next fire time; a single goroutine sleeps
// until the earliest trigger, capped at 60 seconds so wall-clock jumps (NTP
// steps, DST, system sleep) are noticed within a minute.
//
// A fire fetches the owner's most recent items, skips the newest one if a
// completed task already exists for it, and otherwise enqueues it. Triggers
// live only in memory; the caller re-registers jobs from the store on start.
package scheduler
