package habits

import (
	"sort"
	"time"
)

// StreakState is the value-level view of a Streak row used by the transition
// functions. An empty LastLogDate means no completion has ever been recorded.
type StreakState struct {
	Current     int
	Longest     int
	LastLogDate string
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// applyCompletion returns the streak state after a new completion on date.
// The caller guarantees the (habit, date) pair did not already exist and that
// date is strictly after LastLogDate; back-filled dates go through
// recomputeStreak instead so the insert and delete paths agree.
//
// A completion one day after the last log extends the streak; a larger gap
// restarts it at 1.
func applyCompletion(state StreakState, date time.Time) StreakState {
	next := state
	next.LastLogDate = date.Format(DateLayout)
	if state.LastLogDate == "" {
		next.Current = 1
	} else {
		last, err := ParseDate(state.LastLogDate)
		if err != nil || daysBetween(last, date) > 1 {
			next.Current = 1
		} else {
			next.Current = state.Current + 1
		}
	}
	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	return next
}

// applyLatestRemoval returns the streak state after deleting the completion
// at LastLogDate. newLatest is the next most recent remaining log date, empty
// when no logs remain. LongestStreak is never decreased.
func applyLatestRemoval(state StreakState, newLatest string) StreakState {
	next := state
	if newLatest == "" {
		next.Current = 0
		next.LastLogDate = ""
		return next
	}
	next.Current = state.Current - 1
	if next.Current < 0 {
		next.Current = 0
	}
	next.LastLogDate = newLatest
	return next
}

// recomputeStreak rebuilds the streak state from the complete set of log
// dates. It serves both out-of-order inserts and interior deletions. The
// current streak is the length of the consecutive run ending at the most
// recent date; the longest streak only ever grows.
func recomputeStreak(state StreakState, dates []time.Time) StreakState {
	next := state
	if len(dates) == 0 {
		next.Current = 0
		next.LastLogDate = ""
		return next
	}

	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	longestRun := 1
	run := 1
	for i := 1; i < len(sorted); i++ {
		if daysBetween(sorted[i-1], sorted[i]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > longestRun {
			longestRun = run
		}
	}

	next.Current = run
	next.LastLogDate = sorted[len(sorted)-1].Format(DateLayout)
	if longestRun > next.Longest {
		next.Longest = longestRun
	}
	return next
}
