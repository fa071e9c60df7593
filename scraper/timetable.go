package main

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lutonsalah/jummah/schema"
)

const (
	selMosqueName = `h3.text-center span.color-green`
	selTimetable  = `table.table-hover`
	selRows       = `tbody tr`
)

// timetableColumns is the number of cells in a timetable row: day, date, and
// the five prayers.
const timetableColumns = 7

// scrapeTimetable extracts the mosque name and daily timings from an InspireFM
// prayer timings page. The mosque name is empty if it isn't on the page, and
// the timings are empty if the timetable isn't.
func scrapeTimetable(doc *goquery.Document) *schema.MosqueRecord {
	rec := &schema.MosqueRecord{
		MosqueName: strings.TrimSpace(doc.Find(selMosqueName).Text()),
		Timings:    []schema.TimingRow{},
	}
	doc.Find(selTimetable).Find(selRows).Each(func(i int, row *goquery.Selection) {
		cols := row.Find("td")
		if cols.Length() != timetableColumns {
			return
		}
		col := func(i int) string {
			// note: don't collapse whitespace, zuhr uses it to separate jummah times
			return strings.TrimSpace(cols.Eq(i).Text())
		}
		rec.Timings = append(rec.Timings, schema.TimingRow{
			Day:    col(0),
			Date:   col(1),
			Fajr:   col(2),
			Zuhr:   col(3),
			Asr:    col(4),
			Magrib: col(5),
			Isha:   col(6),
		})
	})
	return rec
}
