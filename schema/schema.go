// Package schema contains the prayer timetable data model shared by the
// scraper, the index builder, and the exporters.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimingRow is one calendar day of prayer times for a mosque. All fields are
// kept exactly as scraped.
type TimingRow struct {
	Day    string `json:"day"`
	Date   string `json:"date"`
	Fajr   string `json:"fajr"`
	Zuhr   string `json:"zuhr"`
	Asr    string `json:"asr"`
	Magrib string `json:"magrib"`
	Isha   string `json:"isha"`
}

// MosqueRecord is the stored timetable for a single mosque. The slug is not
// part of the record; it comes from the storage key.
type MosqueRecord struct {
	MosqueName string      `json:"mosqueName"`
	Timings    []TimingRow `json:"timings"`
}

// GetTimings returns the timings, or nil if r is nil.
func (r *MosqueRecord) GetTimings() []TimingRow {
	if r == nil {
		return nil
	}
	return r.Timings
}

// JummahEntry is a Friday with one or more congregational prayer times.
type JummahEntry struct {
	Date  string   `json:"date"`
	Times []string `json:"times"`
}

// MosqueIndexEntry summarizes one mosque record in the index.
type MosqueIndexEntry struct {
	Name           string        `json:"name"`
	Slug           string        `json:"slug"`
	DataFile       string        `json:"dataFile"`
	HasData        bool          `json:"hasData"`
	JummahSchedule []JummahEntry `json:"jummahSchedule"`
}

// MosqueIndex is the consolidated index of all mosque records.
type MosqueIndex struct {
	Mosques     []MosqueIndexEntry `json:"mosques"`
	LastUpdated string             `json:"lastUpdated"`
}

// TimestampFormat is the format of [MosqueIndex.LastUpdated] (UTC with
// millisecond precision).
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp formats t for [MosqueIndex.LastUpdated].
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// DecodeRecord decodes a stored mosque record. If timings is missing or isn't
// an array, the record has no timings.
func DecodeRecord(buf []byte) (*MosqueRecord, error) {
	var raw *struct {
		MosqueName string          `json:"mosqueName"`
		Timings    json.RawMessage `json:"timings"`
	}
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("record is null")
	}
	rec := &MosqueRecord{
		MosqueName: raw.MosqueName,
	}
	if t := bytes.TrimSpace(raw.Timings); len(t) != 0 && t[0] == '[' {
		if err := json.Unmarshal(t, &rec.Timings); err != nil {
			return nil, fmt.Errorf("decode timings: %w", err)
		}
	}
	return rec, nil
}

// EncodeRecord encodes a mosque record for storage.
func EncodeRecord(rec *MosqueRecord) ([]byte, error) {
	if rec.Timings == nil {
		rec = &MosqueRecord{MosqueName: rec.MosqueName, Timings: []TimingRow{}}
	}
	return marshalIndent(rec)
}

// DecodeIndex decodes a mosque index.
func DecodeIndex(buf []byte) (*MosqueIndex, error) {
	var idx MosqueIndex
	if err := json.Unmarshal(buf, &idx); err != nil {
		return nil, fmt.Errorf("decode mosque index: %w", err)
	}
	return &idx, nil
}

// EncodeIndex encodes a mosque index.
func EncodeIndex(idx *MosqueIndex) ([]byte, error) {
	return marshalIndent(idx)
}

func marshalIndent(v any) ([]byte, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// ClockTime is a time of day in minutes since midnight. Negative values are
// invalid.
type ClockTime int32

func MakeClockTime(hh, mm int) ClockTime {
	if hh < 0 || mm < 0 {
		return -1
	}
	return ClockTime(hh*60 + mm)
}

func (t ClockTime) IsValid() bool {
	return t >= 0 && t < 24*60
}

func (t ClockTime) Split() (hh, mm int) {
	if t >= 0 {
		hh = int(t / 60)
		mm = int(t % 60)
	}
	return
}

func (t ClockTime) String() string {
	return t.Format(false)
}

func (t ClockTime) Format(ampm bool) string {
	if !t.IsValid() {
		return "invalid"
	}
	var b strings.Builder
	hh, mm := t.Split()
	ap := byte('a')
	if ampm && hh >= 12 {
		ap = 'p'
		hh -= 12
	}
	if ampm && hh == 0 {
		b.WriteByte('1')
		b.WriteByte('2')
	} else {
		if !ampm || hh >= 10 {
			b.WriteByte('0' + byte(hh/10))
		}
		b.WriteByte('0' + byte(hh%10))
	}
	b.WriteByte(':')
	b.WriteByte('0' + byte(mm/10))
	b.WriteByte('0' + byte(mm%10))
	if ampm {
		b.WriteByte(ap)
		b.WriteByte('m')
	}
	return b.String()
}

// ParseClockTime parses a timetable time like "13:30", "1.30", or "1:30 pm".
// Times without am/pm are taken as 24-hour.
func ParseClockTime(s string) (ClockTime, bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	var pm, ampm bool
	if x, ok := strings.CutSuffix(s, "am"); ok {
		s, ampm = x, true
	} else if x, ok := strings.CutSuffix(s, "pm"); ok {
		s, ampm, pm = x, true, true
	}
	s = strings.TrimSpace(s)

	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		if hs, ms, ok = strings.Cut(s, "."); !ok {
			return -1, false
		}
	}
	if len(hs) < 1 || len(hs) > 2 || len(ms) != 2 {
		return -1, false
	}
	hh, ok1 := atoi(hs)
	mm, ok2 := atoi(ms)
	if !ok1 || !ok2 || mm > 59 {
		return -1, false
	}
	if ampm {
		if hh < 1 || hh > 12 {
			return -1, false
		}
		if hh == 12 {
			hh = 0
		}
		if pm {
			hh += 12
		}
	} else if hh > 23 {
		return -1, false
	}
	return MakeClockTime(hh, mm), true
}

func atoi(s string) (int, bool) {
	var n int
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
