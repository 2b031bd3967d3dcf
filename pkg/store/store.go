package store

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"apexcoach/pkg/model"
)

// ErrNotFound marks lookups with no stored row.
var ErrNotFound = errors.New("not found")

// SessionRecord is one row of the session index.
type SessionRecord struct {
	ID        string    `json:"id"`
	Track     string    `json:"track"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"` // zero while running
	Laps      int       `json:"laps"`
	ValidLaps int       `json:"validLaps"`
	BestLap   *float64  `json:"bestLap"` // nil without a valid lap
}

// referencePayload carries a full reference lap through the blob
// column. Lap strips its samples from JSON, so they ride separately.
type referencePayload struct {
	Lap     model.Lap      `json:"lap"`
	Samples []model.Sample `json:"samples"`
}

// Manager owns the sqlite session index: sessions, their laps, and the
// per-track personal best used for seeding later sessions.
type Manager struct {
	db *sql.DB
	mu sync.Mutex
}

func NewManager(dbFile string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %s", dbFile)
	}

	for _, stmt := range []string{
		buildCreateSessionsTable(),
		buildCreateLapsTable(),
		buildCreateReferencesTable(),
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "creating tables")
		}
	}

	return &Manager{db: db}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Close()
}

// UpsertSession writes the session row, replacing any previous state.
func (m *Manager) UpsertSession(rec SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ended int64
	if !rec.EndedAt.IsZero() {
		ended = rec.EndedAt.Unix()
	}
	var best interface{}
	if rec.BestLap != nil {
		best = *rec.BestLap
	}
	_, err := m.db.Exec(buildUpsertSessionCommand(),
		rec.ID, rec.Track, rec.StartedAt.Unix(), ended, rec.Laps, rec.ValidLaps, best)
	return errors.Wrap(err, "upserting session")
}

// SaveLap records one finalized lap under its session.
func (m *Manager) SaveLap(sessionID string, sum model.LapSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.Exec(buildUpsertLapCommand(),
		sessionID, sum.LapNumber, sum.TotalTime,
		sum.SectorTimes[0], sum.SectorTimes[1], sum.SectorTimes[2],
		boolInt(sum.Valid), boolInt(sum.IsPB), sum.InvalidReason)
	return errors.Wrap(err, "saving lap")
}

// SaveReport attaches the rendered report text to the session row.
func (m *Manager) SaveReport(sessionID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.Exec(buildUpdateReportCommand(), text, sessionID)
	return errors.Wrap(err, "saving report")
}

// Sessions lists the stored sessions, newest first.
func (m *Manager) Sessions() ([]SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query, read := buildSelectSessionsCommand()
	rows, err := m.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "listing sessions")
	}
	return read(rows)
}

// Laps returns the stored laps of one session in lap order.
func (m *Manager) Laps(sessionID string) ([]model.LapSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query, read := buildSelectLapsCommand()
	rows, err := m.db.Query(query, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "listing laps")
	}
	return read(rows)
}

// Report returns the stored report text for a session.
func (m *Manager) Report(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var text sql.NullString
	err := m.db.QueryRow(buildSelectReportCommand(), sessionID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "reading report")
	}
	if !text.Valid || text.String == "" {
		return "", ErrNotFound
	}
	return text.String, nil
}

// SaveReference persists the track's personal best, full samples
// included, for seeding later sessions. Replaces any previous PB.
func (m *Manager) SaveReference(track string, lap *model.Lap) error {
	if track == "" || lap == nil {
		return nil
	}
	payload, err := json.Marshal(referencePayload{Lap: *lap, Samples: lap.Samples})
	if err != nil {
		return errors.Wrap(err, "encoding reference lap")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	_, err = m.db.Exec(buildUpsertReferenceCommand(),
		track, lap.TotalTime, time.Now().Unix(), payload)
	return errors.Wrap(err, "saving reference")
}

// LoadReference returns the stored PB lap for a track, or nil when the
// track has none.
func (m *Manager) LoadReference(track string) (*model.Lap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var blob []byte
	err := m.db.QueryRow(buildSelectReferenceCommand(), track).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading reference")
	}

	var payload referencePayload
	if err := json.Unmarshal(blob, &payload); err != nil {
		return nil, errors.Wrap(err, "decoding reference lap")
	}
	lap := payload.Lap
	lap.Samples = payload.Samples
	return &lap, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
