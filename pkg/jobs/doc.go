// Package jobs runs the periodic maintenance of the account pool.
//
// Runner holds the operations: bulk credential refresh, the daily usage
// counter reset, the cache mirror rebuild and the model catalog refresh.
// The CLI calls them directly; Scheduler runs them on cron schedules while
// the server is up.
//
// Schedules accept standard five-field cron expressions and descriptors:
//   - "0 0 * * *"   - daily at midnight
//   - "@every 10m"  - every ten minutes
//   - "@every 6h"   - every six hours
//
// An empty schedule disables that job.
package jobs
