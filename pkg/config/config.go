package config

// Resolved configuration values. Written once by the command layer at
// startup (flags, config file, APEX_* environment) and read-only from
// then on.
var (
	UDPPort  int    // telemetry listen port
	HTTPAddr string // dashboard listen address
	DBFile   string // sqlite database path
	DataDir  string // session CSV and report output directory

	BinCount          int // distance bins for delta comparison
	LapWindow         int // rolling consistency window, in laps
	CornerHistory     int // per-corner rolling history length
	MaxCornerCallouts int // corner cue budget per lap
	ReportInterval    int // laps between periodic reports

	GapTimeoutSec float64 // stream gap that triggers a defensive reset

	BrakeDiff    float64 // coaching threshold: brake point difference (m)
	SpeedDiff    float64 // coaching threshold: corner speed difference (km/h)
	ThrottleDiff float64 // coaching threshold: throttle point difference (m)

	CornersFile string // static corner definitions, empty = detect from lap

	QuestDBAddr string // QuestDB ILP address, empty disables the sink

	TelegramToken string // bot token for push notifications, empty disables
	TelegramChat  int64  // chat id for push notifications

	LogLevel  string // zap level
	LogFormat string // text or json
)
