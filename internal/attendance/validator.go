// Package attendance implements the capture paths for attendance events: the
// chronological consistency check, the merged today view that feeds it, and
// the capture service that durably queues every event before any remote work.
package attendance

import "fieldsync/internal/model"

// CheckConsistency decides whether a new attendance event is chronologically
// consistent given today's known events, newest first.
//
// Rules:
//   - a clock-in is inconsistent if the most recent event today is itself a
//     clock-in (missing an intervening clock-out)
//   - a clock-out is inconsistent if there is no event today, or the most
//     recent one is already a clock-out
//
// The flag and note are attached to the record but never block the write;
// inconsistent captures are still recorded for later human review.
func CheckConsistency(kind model.EventKind, todayDesc []model.AttendanceEntry) (bool, string) {
	switch kind {
	case model.EventClockIn:
		if len(todayDesc) > 0 && todayDesc[0].Kind == model.EventClockIn {
			return true, "clock-in recorded while the previous clock-in has no matching clock-out"
		}
	case model.EventClockOut:
		if len(todayDesc) == 0 {
			return true, "clock-out recorded with no clock-in earlier today"
		}
		if todayDesc[0].Kind == model.EventClockOut {
			return true, "clock-out recorded while the most recent event is already a clock-out"
		}
	}
	return false, ""
}
