package main

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/lutonsalah/jummah/schema"
	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	CSV      = flag.String("csv", "", "write csv to this directory")
	JSON     = flag.String("json", "", "write json to this file")
	TextPB   = flag.String("textpb", "", "write textpb to this file")
	Sqlite   = flag.String("sqlite", "", "write sqlite database to this file")
	ICal     = flag.String("ical", "", "write the jummah schedule as an icalendar file")
	ICalTZ   = flag.String("ical-tz", "Europe/London", "time zone of the jummah times (-ical)")
	ICalLen  = flag.Duration("ical-length", 30*time.Minute, "length of each jummah event (-ical)")
	Postgres = flag.String("postgres", "", "replace the mosque tables in this postgres database (connection string)")
	Timings  = flag.Bool("timings", false, "include the daily timings from each mosque's data file (-sqlite -csv)")
	Pretty   = flag.Bool("pretty", false, "prettify output (-json -textpb)")
	Indent   = flag.String("indent", "  ", "indentation to use when -pretty")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "%s [options] mosque-index.json\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const ddl = `
CREATE TABLE metadata (
	key TEXT,
	value TEXT
);

CREATE TABLE mosques (
	id INTEGER PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	data_file TEXT NOT NULL,
	has_data BOOLEAN NOT NULL
);

CREATE TABLE jummah (
	id INTEGER PRIMARY KEY,
	mosque_id INTEGER REFERENCES mosques(id),
	date TEXT NOT NULL
);

CREATE TABLE jummah_times (
	jummah_id INTEGER REFERENCES jummah(id),
	session INTEGER NOT NULL, -- 1-based
	raw_time TEXT NOT NULL,
	start INTEGER -- if parseable; minutes since midnight
);

CREATE TABLE timings (
	mosque_id INTEGER REFERENCES mosques(id),
	day TEXT NOT NULL,
	date TEXT NOT NULL,
	fajr TEXT NOT NULL,
	zuhr TEXT NOT NULL,
	asr TEXT NOT NULL,
	magrib TEXT NOT NULL,
	isha TEXT NOT NULL
);

CREATE VIEW jummah_sessions AS SELECT slug, name, date, session, raw_time, start FROM jummah_times
	LEFT JOIN jummah ON jummah_id = jummah.id
	LEFT JOIN mosques ON mosque_id = mosques.id
	ORDER BY name, jummah.id, session;
`

func setupConn(c *sqlite3.Conn) error {
	if err := c.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return err
	}
	return nil
}

func run(name string) error {
	slog.Info("loading index", "name", name)
	var idx *schema.MosqueIndex
	if buf, err := os.ReadFile(name); err != nil {
		return fmt.Errorf("load index: %w", err)
	} else if idx, err = schema.DecodeIndex(buf); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	if *TextPB != "" {
		slog.Info("writing textpb", "name", *TextPB, "pretty", *Pretty)
		if buf, err := marshalTextPB(idx, *Pretty); err != nil {
			return fmt.Errorf("export textpb: %w", err)
		} else if err := os.WriteFile(*TextPB, buf, 0644); err != nil {
			return fmt.Errorf("export textpb: %w", err)
		}
	}

	if *JSON != "" {
		slog.Info("writing json", "name", *JSON, "pretty", *Pretty)
		if buf, err := marshalJSON(idx, *Pretty, *Indent); err != nil {
			return fmt.Errorf("export json: %w", err)
		} else if err := os.WriteFile(*JSON, buf, 0644); err != nil {
			return fmt.Errorf("export json: %w", err)
		}
	}

	if *ICal != "" {
		slog.Info("writing icalendar", "name", *ICal, "tz", *ICalTZ)
		loc, err := time.LoadLocation(*ICalTZ)
		if err != nil {
			return fmt.Errorf("export icalendar: %w", err)
		}
		if buf, err := marshalICal(idx, loc, *ICalLen, time.Now()); err != nil {
			return fmt.Errorf("export icalendar: %w", err)
		} else if err := os.WriteFile(*ICal, buf, 0644); err != nil {
			return fmt.Errorf("export icalendar: %w", err)
		}
	}

	if *Postgres != "" {
		slog.Info("writing postgres")
		if err := exportPostgres(*Postgres, idx); err != nil {
			return fmt.Errorf("export postgres: %w", err)
		}
	}

	if *Sqlite != "" || *CSV != "" {
		slog.Info("creating sqlite database")

		db, err := driver.Open(":memory:", setupConn)
		if err != nil {
			return fmt.Errorf("initialize db: %w", err)
		}
		defer db.Close()

		var records map[string]*schema.MosqueRecord
		if *Timings {
			records = loadRecords(filepath.Dir(name), idx)
		}
		if err := populate(db, idx, records); err != nil {
			return err
		}

		if *Sqlite != "" {
			slog.Info("writing sqlite db", "name", *Sqlite)
			if err := os.Remove(*Sqlite); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("export sqlite3: %w", err)
			}
			if _, err := db.Exec(`VACUUM INTO ` + sqlite3.Quote(*Sqlite)); err != nil {
				return fmt.Errorf("export sqlite3: %w", err)
			}
		}

		if *CSV != "" {
			slog.Info("writing csv", "dir", *CSV)
			if err := os.Mkdir(*CSV, 0777); err != nil && !errors.Is(err, os.ErrExist) {
				return fmt.Errorf("export csv: %w", err)
			}
			tables, err := getSqliteTables(db)
			if err != nil {
				return fmt.Errorf("export csv: get tables: %w", err)
			}
			for _, table := range tables {
				if err := exportCSV(db, table, filepath.Join(*CSV, table+".csv")); err != nil {
					return fmt.Errorf("export csv: table %s: %w", table, err)
				}
			}
		}
	}

	slog.Info("done")
	return nil
}

// loadRecords loads the data files referenced by the index, which is in dir.
// Unreadable records are logged and left out.
func loadRecords(dir string, idx *schema.MosqueIndex) map[string]*schema.MosqueRecord {
	records := make(map[string]*schema.MosqueRecord, len(idx.Mosques))
	for _, m := range idx.Mosques {
		if m.DataFile == "" {
			continue
		}
		buf, err := os.ReadFile(resolveDataFile(dir, m.DataFile))
		if err != nil {
			slog.Warn("failed to read mosque record", "slug", m.Slug, "error", err)
			continue
		}
		rec, err := schema.DecodeRecord(buf)
		if err != nil {
			slog.Warn("failed to decode mosque record", "slug", m.Slug, "error", err)
			continue
		}
		records[m.Slug] = rec
	}
	return records
}

// resolveDataFile returns the path of a data file referenced by an index in
// dir. Data files are relative to the parent of the data directory, which is
// usually dir, but is the parent of dir if the index is inside the data
// directory.
func resolveDataFile(dir, dataFile string) string {
	name := filepath.Join(dir, filepath.FromSlash(dataFile))
	if first, _, ok := strings.Cut(dataFile, "/"); ok && first == filepath.Base(dir) {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			return filepath.Join(filepath.Dir(dir), filepath.FromSlash(dataFile))
		}
	}
	return name
}

func populate(db *sql.DB, idx *schema.MosqueIndex, records map[string]*schema.MosqueRecord) error {
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize db: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO metadata (key, value) VALUES ('last_updated', ?)`, idx.LastUpdated); err != nil {
		return fmt.Errorf("insert metadata: %w", err)
	}
	for _, mosque := range idx.Mosques {
		var mosqueID int64
		if err := db.QueryRow(
			`INSERT INTO mosques (
				slug, name, data_file, has_data
			) VALUES (
				?, ?, ?, ?
			) RETURNING id`,
			mosque.Slug, mosque.Name, mosque.DataFile, mosque.HasData,
		).Scan(&mosqueID); err != nil {
			return fmt.Errorf("insert mosque %q: %w", mosque.Slug, err)
		}
		for _, jummah := range mosque.JummahSchedule {
			var jummahID int64
			if err := db.QueryRow(
				`INSERT INTO jummah (mosque_id, date) VALUES (?, ?) RETURNING id`,
				mosqueID, jummah.Date,
			).Scan(&jummahID); err != nil {
				return fmt.Errorf("insert jummah: %w", err)
			}
			for i, t := range jummah.Times {
				if _, err := db.Exec(
					`INSERT INTO jummah_times (
						jummah_id, session, raw_time, start
					) VALUES (
						?, ?, ?, ?
					)`,
					jummahID, i+1, t, clockOrNil(t),
				); err != nil {
					return fmt.Errorf("insert jummah time: %w", err)
				}
			}
		}
		for _, row := range records[mosque.Slug].GetTimings() {
			if _, err := db.Exec(
				`INSERT INTO timings (
					mosque_id, day, date,
					fajr, zuhr, asr, magrib, isha
				) VALUES (
					?, ?, ?,
					?, ?, ?, ?, ?
				)`,
				mosqueID, row.Day, row.Date,
				row.Fajr, row.Zuhr, row.Asr, row.Magrib, row.Isha,
			); err != nil {
				return fmt.Errorf("insert timing: %w", err)
			}
		}
	}
	return nil
}

func clockOrNil(s string) *int {
	if t, ok := schema.ParseClockTime(s); ok {
		return pointer(int(t))
	}
	return nil
}

func pointer[T any](x T) *T {
	return &x
}

func getSqliteTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func exportCSV(db *sql.DB, table, outname string) error {
	rows, err := db.Query(`SELECT * FROM ` + table)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(outname, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)

	// write errors are sticky and checked by cw.Error after the flush
	cw.Write(cols)

	var (
		values    = make([]sql.NullString, len(cols))
		valueOuts = make([]any, len(cols))
		valueStrs = make([]string, len(cols))
	)
	for i := range values {
		valueOuts[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(valueOuts...); err != nil {
			return err
		}
		for i, v := range values {
			if v.Valid {
				valueStrs[i] = v.String
			} else {
				valueStrs[i] = ""
			}
		}
		cw.Write(valueStrs)
	}
	cw.Flush()

	if err := rows.Err(); err != nil {
		return err
	}
	if err := cw.Error(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return nil
}
