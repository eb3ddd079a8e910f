// Package monitor drives the periodic catalog checks.
//
// A cron schedule (or plain interval) triggers a pass over every
// tracked product: fetch per-store variants, run sale detection,
// apply the notification throttle and hand approved alerts to the
// publisher. Manual passes via CheckAll share a run gate with the
// scheduler so only one pass is ever in flight.
package monitor
