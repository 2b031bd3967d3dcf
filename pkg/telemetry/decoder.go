package telemetry

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"apexcoach/pkg/model"
)

// Packet ids of the sim's UDP broadcast, format 2025.
const (
	packetMotion       = 0
	packetSession      = 1
	packetLap          = 2
	packetEvent        = 3
	packetCarTelemetry = 6
	packetCarDamage    = 10
)

const (
	expectedFormat = 2025
	headerLen      = 29

	motionCarLen    = 60
	lapCarLen       = 57
	telemetryCarLen = 60
	damageCarLen    = 46
)

// Event string codes the coach reacts to. Everything else is ignored.
const (
	EventSessionStarted = "SSTA"
	EventSessionEnded   = "SEND"
	EventFlashback      = "FLBK"
	EventPenalty        = "PENA"
)

// Header is the 29-byte preamble every packet carries.
type Header struct {
	PacketFormat   uint16
	GameYear       uint8
	PacketVersion  uint8
	PacketID       uint8
	SessionUID     uint64
	SessionTime    float32
	FrameID        uint32
	PlayerCarIndex uint8
}

// SessionInfo identifies the circuit the session runs on.
type SessionInfo struct {
	UID         uint64
	TrackID     int8
	TrackName   string
	TrackLength float64
}

type UpdateKind int

const (
	UpdateSample UpdateKind = iota
	UpdateSession
	UpdateEvent
)

// Update is one decoded item off the wire. Exactly one of Sample,
// Session and Event is set, matching Kind.
type Update struct {
	Kind    UpdateKind
	Sample  *model.Sample
	Session *SessionInfo
	Event   string
}

type carDamage struct {
	flWing, frWing, rearWing, floor, diffuser, sidepod uint8
}

// Decoder fuses the sim's packet stream into samples. Motion, telemetry
// and damage packets update pending state; each lap-data packet stamps
// and emits one complete sample, so the lap packet sets the cadence.
// Not safe for concurrent use.
type Decoder struct {
	session   SessionInfo
	haveTrack bool

	pending       model.Sample
	wallContact   bool
	lastPenalties uint8

	damage     carDamage
	haveDamage bool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode consumes one datagram. It returns nil when the packet only
// updated internal state, and an error when the payload is malformed
// or from an unsupported game version.
func (d *Decoder) Decode(buf []byte) (*Update, error) {
	h, err := parseHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.PacketFormat != expectedFormat {
		return nil, errors.Errorf("unsupported packet format %d", h.PacketFormat)
	}

	switch h.PacketID {
	case packetMotion:
		off, err := carOffset(buf, h.PlayerCarIndex, motionCarLen)
		if err != nil {
			return nil, err
		}
		d.pending.PosX = float64(f32(buf[off:]))
		d.pending.PosZ = float64(f32(buf[off+8:]))

	case packetSession:
		if len(buf) < headerLen+8 {
			return nil, errors.Errorf("short session packet: %d bytes", len(buf))
		}
		info := SessionInfo{
			UID:         h.SessionUID,
			TrackID:     int8(buf[headerLen+7]),
			TrackLength: float64(binary.LittleEndian.Uint16(buf[headerLen+4:])),
		}
		info.TrackName = TrackName(info.TrackID)
		if !d.haveTrack || info != d.session {
			d.session = info
			d.haveTrack = true
			return &Update{Kind: UpdateSession, Session: &info}, nil
		}

	case packetLap:
		off, err := carOffset(buf, h.PlayerCarIndex, lapCarLen)
		if err != nil {
			return nil, err
		}
		s := d.pending
		s.Timestamp = float64(h.SessionTime)
		s.LapDistance = float64(f32(buf[off+20:]))
		s.TotalDistance = float64(f32(buf[off+24:]))
		s.LapNumber = int(buf[off+33])
		s.Sector = int(buf[off+36]) + 1
		s.OffTrack = buf[off+37] == 1
		pen := buf[off+38]
		s.Penalty = pen > d.lastPenalties
		d.lastPenalties = pen
		s.WallContact = d.wallContact
		d.wallContact = false
		return &Update{Kind: UpdateSample, Sample: &s}, nil

	case packetEvent:
		if len(buf) < headerLen+4 {
			return nil, errors.Errorf("short event packet: %d bytes", len(buf))
		}
		code := string(buf[headerLen : headerLen+4])
		switch code {
		case EventSessionStarted, EventSessionEnded, EventFlashback, EventPenalty:
			return &Update{Kind: UpdateEvent, Event: code}, nil
		}

	case packetCarTelemetry:
		off, err := carOffset(buf, h.PlayerCarIndex, telemetryCarLen)
		if err != nil {
			return nil, err
		}
		d.pending.Speed = float64(binary.LittleEndian.Uint16(buf[off:]))
		d.pending.Throttle = float64(f32(buf[off+2:]))
		d.pending.Steer = float64(f32(buf[off+6:]))
		d.pending.Brake = float64(f32(buf[off+10:]))
		d.pending.Gear = int(int8(buf[off+15]))
		d.pending.RPM = int(binary.LittleEndian.Uint16(buf[off+16:]))

	case packetCarDamage:
		off, err := carOffset(buf, h.PlayerCarIndex, damageCarLen)
		if err != nil {
			return nil, err
		}
		cur := carDamage{
			flWing:   buf[off+28],
			frWing:   buf[off+29],
			rearWing: buf[off+30],
			floor:    buf[off+31],
			diffuser: buf[off+32],
			sidepod:  buf[off+33],
		}
		if d.haveDamage && structuralIncrease(d.damage, cur) {
			// latched until the next emitted sample
			d.wallContact = true
		}
		d.damage = cur
		d.haveDamage = true
	}
	return nil, nil
}

// Session returns the last session info seen, if any.
func (d *Decoder) Session() (SessionInfo, bool) {
	return d.session, d.haveTrack
}

func (d *Decoder) Reset() {
	*d = Decoder{}
}

func parseHeader(buf []byte) (Header, error) {
	if len(buf) < headerLen {
		return Header{}, errors.Errorf("short packet: %d bytes", len(buf))
	}
	return Header{
		PacketFormat:   binary.LittleEndian.Uint16(buf[0:]),
		GameYear:       buf[2],
		PacketVersion:  buf[5],
		PacketID:       buf[6],
		SessionUID:     binary.LittleEndian.Uint64(buf[7:]),
		SessionTime:    f32(buf[15:]),
		FrameID:        binary.LittleEndian.Uint32(buf[19:]),
		PlayerCarIndex: buf[27],
	}, nil
}

func carOffset(buf []byte, idx uint8, carLen int) (int, error) {
	off := headerLen + int(idx)*carLen
	if len(buf) < off+carLen {
		return 0, errors.Errorf("truncated packet: %d bytes, car %d", len(buf), idx)
	}
	return off, nil
}

func structuralIncrease(prev, cur carDamage) bool {
	return cur.flWing > prev.flWing ||
		cur.frWing > prev.frWing ||
		cur.rearWing > prev.rearWing ||
		cur.floor > prev.floor ||
		cur.diffuser > prev.diffuser ||
		cur.sidepod > prev.sidepod
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
