package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/lutonsalah/jummah/schema"
)

const pgDDL = `
CREATE TABLE IF NOT EXISTS mosques (
	id SERIAL PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	data_file TEXT NOT NULL,
	has_data BOOLEAN NOT NULL,
	last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jummah_times (
	mosque_id INTEGER NOT NULL REFERENCES mosques(id) ON DELETE CASCADE,
	date TEXT NOT NULL,
	session INTEGER NOT NULL,
	raw_time TEXT NOT NULL,
	start INTEGER
);
`

// exportPostgres replaces the contents of the mosque tables with the index.
func exportPostgres(dsn string, idx *schema.MosqueIndex) error {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(pgDDL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mosques`); err != nil {
		return fmt.Errorf("delete mosques: %w", err)
	}

	insertMosque, err := tx.Preparex(tx.Rebind(`INSERT INTO mosques (slug, name, data_file, has_data, last_updated) VALUES (?, ?, ?, ?, ?) RETURNING id`))
	if err != nil {
		return err
	}
	insertTime, err := tx.Preparex(tx.Rebind(`INSERT INTO jummah_times (mosque_id, date, session, raw_time, start) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}

	for _, m := range idx.Mosques {
		var mosqueID int64
		if err := insertMosque.QueryRowx(m.Slug, m.Name, m.DataFile, m.HasData, idx.LastUpdated).Scan(&mosqueID); err != nil {
			return fmt.Errorf("insert mosque %q: %w", m.Slug, err)
		}
		for _, e := range m.JummahSchedule {
			for i, t := range e.Times {
				if _, err := insertTime.Exec(mosqueID, e.Date, i+1, t, clockOrNil(t)); err != nil {
					return fmt.Errorf("insert jummah time: %w", err)
				}
			}
		}
	}
	return tx.Commit()
}
