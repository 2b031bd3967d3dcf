package store

import (
	"database/sql"
	"time"

	"apexcoach/pkg/model"
)

func buildCreateSessionsTable() string {
	return `CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		track TEXT,
		started_at INTEGER,
		ended_at INTEGER,
		laps INTEGER,
		valid_laps INTEGER,
		best_lap REAL,
		report TEXT);`
}

func buildCreateLapsTable() string {
	return `CREATE TABLE IF NOT EXISTS laps (
		session_id TEXT NOT NULL,
		lap_number INTEGER NOT NULL,
		total_time REAL,
		s1 REAL,
		s2 REAL,
		s3 REAL,
		valid INTEGER,
		pb INTEGER,
		invalid_reason TEXT,
		PRIMARY KEY (session_id, lap_number));`
}

func buildCreateReferencesTable() string {
	return `CREATE TABLE IF NOT EXISTS track_references (
		track TEXT PRIMARY KEY,
		total_time REAL,
		updated_at INTEGER,
		payload BLOB);`
}

func buildUpsertSessionCommand() string {
	fields := "id, track, started_at, ended_at, laps, valid_laps, best_lap"
	return `INSERT INTO sessions (` + fields + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			track = excluded.track,
			ended_at = excluded.ended_at,
			laps = excluded.laps,
			valid_laps = excluded.valid_laps,
			best_lap = excluded.best_lap;`
}

func buildUpsertLapCommand() string {
	fields := "session_id, lap_number, total_time, s1, s2, s3, valid, pb, invalid_reason"
	return `INSERT OR REPLACE INTO laps (` + fields + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`
}

func buildUpdateReportCommand() string {
	return `UPDATE sessions SET report = ? WHERE id = ?;`
}

func buildUpsertReferenceCommand() string {
	fields := "track, total_time, updated_at, payload"
	return `INSERT OR REPLACE INTO track_references (` + fields + `) VALUES (?, ?, ?, ?);`
}

func buildSelectReferenceCommand() string {
	return `SELECT payload FROM track_references WHERE track = ?;`
}

func buildSelectReportCommand() string {
	return `SELECT report FROM sessions WHERE id = ?;`
}

func buildSelectSessionsCommand() (string, func(*sql.Rows) ([]SessionRecord, error)) {
	fields := "id, track, started_at, ended_at, laps, valid_laps, best_lap"
	return `SELECT ` + fields + ` FROM sessions ORDER BY started_at DESC;`, processSessionRows
}

func processSessionRows(rows *sql.Rows) ([]SessionRecord, error) {
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		var rec SessionRecord
		var started, ended int64
		var best sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.Track, &started, &ended,
			&rec.Laps, &rec.ValidLaps, &best); err != nil {
			return records, err
		}
		rec.StartedAt = time.Unix(started, 0)
		if ended > 0 {
			rec.EndedAt = time.Unix(ended, 0)
		}
		if best.Valid {
			v := best.Float64
			rec.BestLap = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func buildSelectLapsCommand() (string, func(*sql.Rows) ([]model.LapSummary, error)) {
	fields := "lap_number, total_time, s1, s2, s3, valid, pb, invalid_reason"
	return `SELECT ` + fields + ` FROM laps WHERE session_id = ? ORDER BY lap_number;`, processLapRows
}

func processLapRows(rows *sql.Rows) ([]model.LapSummary, error) {
	defer rows.Close()

	laps := []model.LapSummary{}
	for rows.Next() {
		var sum model.LapSummary
		var valid, pb int
		if err := rows.Scan(&sum.LapNumber, &sum.TotalTime,
			&sum.SectorTimes[0], &sum.SectorTimes[1], &sum.SectorTimes[2],
			&valid, &pb, &sum.InvalidReason); err != nil {
			return laps, err
		}
		sum.Valid = valid == 1
		sum.IsPB = pb == 1
		laps = append(laps, sum)
	}
	return laps, rows.Err()
}
