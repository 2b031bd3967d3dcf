package telemetry

import "fmt"

var trackNames = map[int8]string{
	0:  "Melbourne",
	1:  "Paul Ricard",
	2:  "Shanghai",
	3:  "Sakhir",
	4:  "Catalunya",
	5:  "Monaco",
	6:  "Montreal",
	7:  "Silverstone",
	8:  "Hockenheim",
	9:  "Hungaroring",
	10: "Spa",
	11: "Monza",
	12: "Singapore",
	13: "Suzuka",
	14: "Abu Dhabi",
	15: "Austin",
	16: "Interlagos",
	17: "Red Bull Ring",
	18: "Sochi",
	19: "Mexico City",
	20: "Baku",
	21: "Sakhir Short",
	22: "Silverstone Short",
	23: "Austin Short",
	24: "Suzuka Short",
	25: "Hanoi",
	26: "Zandvoort",
	27: "Imola",
	28: "Portimao",
	29: "Jeddah",
	30: "Miami",
	31: "Las Vegas",
	32: "Losail",
}

// TrackName resolves a circuit id to its display name. Unknown ids
// still render, so a new game season never blanks the dashboard.
func TrackName(id int8) string {
	if name, ok := trackNames[id]; ok {
		return name
	}
	return fmt.Sprintf("Track %d", id)
}
