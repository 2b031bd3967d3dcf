package store

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"apexcoach/pkg/model"
)

// tickHeader is the CSV column set, one row per telemetry sample. The
// replay command feeds these files back through the pipeline, so the
// columns cover everything model.Sample carries.
var tickHeader = []string{
	"timestamp", "lap", "lap_distance", "total_distance",
	"pos_x", "pos_z", "speed", "gear", "rpm",
	"throttle", "brake", "steer", "sector",
	"off_track", "wall_contact", "penalty",
}

// TickWriter appends samples to a per-session CSV file. Single
// consumer: the recorder goroutine owns it.
type TickWriter struct {
	path string
	f    *os.File
	w    *csv.Writer
	rows uint64
}

func NewTickWriter(dir, sessionID string) (*TickWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating data dir %s", dir)
	}
	path := filepath.Join(dir, sessionID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating tick log %s", path)
	}
	w := csv.NewWriter(f)
	if err := w.Write(tickHeader); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "writing tick header")
	}
	return &TickWriter{path: path, f: f, w: w}, nil
}

func (t *TickWriter) Path() string { return t.path }
func (t *TickWriter) Rows() uint64 { return t.rows }

func (t *TickWriter) Append(s model.Sample) error {
	row := []string{
		ftoa(s.Timestamp), strconv.Itoa(s.LapNumber),
		ftoa(s.LapDistance), ftoa(s.TotalDistance),
		ftoa(s.PosX), ftoa(s.PosZ), ftoa(s.Speed),
		strconv.Itoa(s.Gear), strconv.Itoa(s.RPM),
		ftoa(s.Throttle), ftoa(s.Brake), ftoa(s.Steer),
		strconv.Itoa(s.Sector),
		btoa(s.OffTrack), btoa(s.WallContact), btoa(s.Penalty),
	}
	if err := t.w.Write(row); err != nil {
		return errors.Wrap(err, "writing tick row")
	}
	t.rows++
	// keep the file current for tailing, the writer buffers per row anyway
	if t.rows%256 == 0 {
		t.w.Flush()
	}
	return nil
}

func (t *TickWriter) Close() error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		t.f.Close()
		return errors.Wrap(err, "flushing tick log")
	}
	return t.f.Close()
}

// TickReader streams samples back out of a recorded CSV.
type TickReader struct {
	f *os.File
	r *csv.Reader
}

func OpenTicks(path string) (*TickReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening tick log %s", path)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = len(tickHeader)
	if _, err := r.Read(); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "reading tick header")
	}
	return &TickReader{f: f, r: r}, nil
}

// Next returns the next recorded sample; io.EOF ends the stream.
func (t *TickReader) Next() (model.Sample, error) {
	row, err := t.r.Read()
	if err == io.EOF {
		return model.Sample{}, io.EOF
	}
	if err != nil {
		return model.Sample{}, errors.Wrap(err, "reading tick row")
	}

	var s model.Sample
	s.Timestamp = atof(row[0])
	s.LapNumber = atoi(row[1])
	s.LapDistance = atof(row[2])
	s.TotalDistance = atof(row[3])
	s.PosX = atof(row[4])
	s.PosZ = atof(row[5])
	s.Speed = atof(row[6])
	s.Gear = atoi(row[7])
	s.RPM = atoi(row[8])
	s.Throttle = atof(row[9])
	s.Brake = atof(row[10])
	s.Steer = atof(row[11])
	s.Sector = atoi(row[12])
	s.OffTrack = row[13] == "1"
	s.WallContact = row[14] == "1"
	s.Penalty = row[15] == "1"
	return s, nil
}

func (t *TickReader) Close() error {
	return t.f.Close()
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func btoa(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
