package schema

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// JummahSchedule extracts the Friday congregational prayer times from a
// mosque's timings, in row order. It never returns nil.
//
// The timetable pages put Jummah in the zuhr column, with multiple sessions
// separated by two or more whitespace characters.
func JummahSchedule(timings []TimingRow) []JummahEntry {
	schedule := []JummahEntry{}
	for _, row := range timings {
		if !strings.EqualFold(row.Day, "friday") {
			continue
		}
		times := SplitJummahTimes(row.Zuhr)
		if len(times) == 0 {
			continue
		}
		schedule = append(schedule, JummahEntry{
			Date:  row.Date,
			Times: times,
		})
	}
	return schedule
}

// SplitJummahTimes splits a zuhr field into individual session times. A single
// space does not separate times. If there aren't at least two sessions, the
// whole trimmed field is returned as one. It returns nil for a blank field.
func SplitJummahTimes(zuhr string) []string {
	whole := strings.TrimSpace(zuhr)
	if whole == "" {
		return nil
	}
	var times []string
	for _, tok := range splitWhitespaceRuns(whole, 2) {
		if tok = strings.TrimSpace(tok); tok != "" {
			times = append(times, tok)
		}
	}
	if len(times) < 2 {
		return []string{whole}
	}
	return times
}

// splitWhitespaceRuns splits s around runs of at least n consecutive
// whitespace runes.
func splitWhitespaceRuns(s string, n int) []string {
	var (
		parts    []string
		start    int // start of the current part
		runStart int // start of the current whitespace run
		runLen   int // runes in the current whitespace run
	)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			if runLen == 0 {
				runStart = i
			}
			runLen++
		} else {
			if runLen >= n {
				parts = append(parts, s[start:runStart])
				start = i
			}
			runLen = 0
		}
		i += size
	}
	if runLen >= n {
		return append(parts, s[start:runStart])
	}
	return append(parts, s[start:])
}

// FilterJummah removes the jummah times of idx for which keep returns false,
// along with any dates and mosques left without times. Times which can't be
// parsed are removed.
func FilterJummah(idx *MosqueIndex, keep func(ClockTime) bool) {
	for i := range idx.Mosques {
		m := &idx.Mosques[i]
		for j := range m.JummahSchedule {
			e := &m.JummahSchedule[j]
			e.Times = slices.DeleteFunc(e.Times, func(s string) bool {
				t, ok := ParseClockTime(s)
				return !ok || !keep(t)
			})
		}
		m.JummahSchedule = slices.DeleteFunc(m.JummahSchedule, func(e JummahEntry) bool {
			return len(e.Times) == 0
		})
	}
	idx.Mosques = slices.DeleteFunc(idx.Mosques, func(m MosqueIndexEntry) bool {
		return len(m.JummahSchedule) == 0
	})
}
