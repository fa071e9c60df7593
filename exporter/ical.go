package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/lutonsalah/jummah/schema"
)

// jummahDateFormat is the format of [schema.JummahEntry.Date].
const jummahDateFormat = "02-01-2006"

// marshalICal encodes each jummah session as a calendar event starting at the
// session time in loc. Sessions without a parseable date or time are skipped.
func marshalICal(idx *schema.MosqueIndex, loc *time.Location, length time.Duration, now time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText("VERSION", "2.0")
	cal.Props.SetText("PRODID", "-//lutonsalah//jummah//EN")
	cal.Props.SetText("CALSCALE", "GREGORIAN")
	cal.Props.SetText("X-WR-CALNAME", "Jummah")

	stamp := ical.NewProp("DTSTAMP")
	stamp.SetDateTime(now.UTC())

	for _, m := range idx.Mosques {
		for _, e := range m.JummahSchedule {
			date, err := time.ParseInLocation(jummahDateFormat, e.Date, loc)
			if err != nil {
				slog.Warn("skipping jummah with invalid date", "slug", m.Slug, "date", e.Date)
				continue
			}
			for i, raw := range e.Times {
				t, ok := schema.ParseClockTime(raw)
				if !ok {
					slog.Debug("skipping jummah session with unparseable time", "slug", m.Slug, "date", e.Date, "time", raw)
					continue
				}
				hh, mm := t.Split()

				event := ical.NewEvent()
				event.Props.SetText("UID", fmt.Sprintf("%s-%s-%d@jummah", m.Slug, date.Format("20060102"), i+1))
				event.Props.SetText("SUMMARY", "Jummah: "+m.Name)
				if len(e.Times) > 1 {
					event.Props.SetText("DESCRIPTION", fmt.Sprintf("Session %d of %d", i+1, len(e.Times)))
				}
				event.Props.Set(stamp)

				start := ical.NewProp("DTSTART")
				start.SetDateTime(time.Date(date.Year(), date.Month(), date.Day(), hh, mm, 0, 0, loc))
				event.Props.Set(start)

				dur := ical.NewProp("DURATION")
				dur.SetDuration(length)
				event.Props.Set(dur)

				cal.Children = append(cal.Children, event.Component)
			}
		}
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
