package telemetry

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func header(packetID uint8, sessionTime float32, playerIdx uint8) []byte {
	b := make([]byte, headerLen)
	binary.LittleEndian.PutUint16(b[0:], expectedFormat)
	b[2] = 25
	b[5] = 1
	b[6] = packetID
	binary.LittleEndian.PutUint64(b[7:], 12345)
	putF32(b[15:], sessionTime)
	binary.LittleEndian.PutUint32(b[19:], 1)
	b[27] = playerIdx
	return b
}

func telemetryPacket(idx uint8, speed uint16, throttle, steer, brake float32, gear int8, rpm uint16) []byte {
	b := append(header(packetCarTelemetry, 1, idx), make([]byte, 22*telemetryCarLen+3)...)
	off := headerLen + int(idx)*telemetryCarLen
	binary.LittleEndian.PutUint16(b[off:], speed)
	putF32(b[off+2:], throttle)
	putF32(b[off+6:], steer)
	putF32(b[off+10:], brake)
	b[off+15] = byte(gear)
	binary.LittleEndian.PutUint16(b[off+16:], rpm)
	return b
}

func motionPacket(idx uint8, posX, posZ float32) []byte {
	b := append(header(packetMotion, 1, idx), make([]byte, 22*motionCarLen)...)
	off := headerLen + int(idx)*motionCarLen
	putF32(b[off:], posX)
	putF32(b[off+8:], posZ)
	return b
}

func lapPacket(idx uint8, sessionTime float32, lapDist, totalDist float32, lapNum, sector, invalid, penalties uint8) []byte {
	b := append(header(packetLap, sessionTime, idx), make([]byte, 22*lapCarLen+2)...)
	off := headerLen + int(idx)*lapCarLen
	putF32(b[off+20:], lapDist)
	putF32(b[off+24:], totalDist)
	b[off+33] = lapNum
	b[off+36] = sector
	b[off+37] = invalid
	b[off+38] = penalties
	return b
}

func sessionPacket(trackID int8, trackLength uint16) []byte {
	b := append(header(packetSession, 1, 0), make([]byte, 40)...)
	binary.LittleEndian.PutUint16(b[headerLen+4:], trackLength)
	b[headerLen+7] = byte(trackID)
	return b
}

func damagePacket(idx uint8, flWing uint8) []byte {
	b := append(header(packetCarDamage, 1, idx), make([]byte, 22*damageCarLen)...)
	b[headerLen+int(idx)*damageCarLen+28] = flWing
	return b
}

func eventPacket(code string) []byte {
	b := append(header(packetEvent, 1, 0), make([]byte, 12)...)
	copy(b[headerLen:], code)
	return b
}

func TestDecode_FusesSampleFromPackets(t *testing.T) {
	d := NewDecoder()

	upd, err := d.Decode(telemetryPacket(3, 287, 0.9, -0.1, 0.05, 6, 11500))
	require.NoError(t, err)
	assert.Nil(t, upd)

	upd, err = d.Decode(motionPacket(3, 150.5, -220.25))
	require.NoError(t, err)
	assert.Nil(t, upd)

	upd, err = d.Decode(lapPacket(3, 65.25, 1234.5, 9234.5, 3, 1, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, upd)
	require.Equal(t, UpdateSample, upd.Kind)

	s := upd.Sample
	require.NotNil(t, s)
	assert.InDelta(t, 65.25, s.Timestamp, 0.001)
	assert.InDelta(t, 287, s.Speed, 0.001)
	assert.InDelta(t, 0.9, s.Throttle, 0.001)
	assert.InDelta(t, -0.1, s.Steer, 0.001)
	assert.InDelta(t, 0.05, s.Brake, 0.001)
	assert.Equal(t, 6, s.Gear)
	assert.Equal(t, 11500, s.RPM)
	assert.InDelta(t, 150.5, s.PosX, 0.001)
	assert.InDelta(t, -220.25, s.PosZ, 0.001)
	assert.InDelta(t, 1234.5, s.LapDistance, 0.001)
	assert.InDelta(t, 9234.5, s.TotalDistance, 0.001)
	assert.Equal(t, 3, s.LapNumber)
	assert.Equal(t, 2, s.Sector) // wire sectors are 0-based
	assert.False(t, s.OffTrack)
}

func TestDecode_SessionEmittedOnChange(t *testing.T) {
	d := NewDecoder()

	upd, err := d.Decode(sessionPacket(11, 5793))
	require.NoError(t, err)
	require.NotNil(t, upd)
	require.Equal(t, UpdateSession, upd.Kind)
	assert.Equal(t, "Monza", upd.Session.TrackName)
	assert.InDelta(t, 5793, upd.Session.TrackLength, 0.001)

	// same session again is old news
	upd, err = d.Decode(sessionPacket(11, 5793))
	require.NoError(t, err)
	assert.Nil(t, upd)

	upd, err = d.Decode(sessionPacket(10, 7004))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, "Spa", upd.Session.TrackName)
}

func TestDecode_WallContactLatchedFromDamage(t *testing.T) {
	d := NewDecoder()

	_, err := d.Decode(damagePacket(0, 0))
	require.NoError(t, err)
	_, err = d.Decode(damagePacket(0, 12))
	require.NoError(t, err)

	upd, err := d.Decode(lapPacket(0, 10, 500, 500, 1, 0, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.True(t, upd.Sample.WallContact)

	// the latch clears once reported
	upd, err = d.Decode(lapPacket(0, 10.1, 505, 505, 1, 0, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.False(t, upd.Sample.WallContact)
}

func TestDecode_PenaltyFlaggedOnIncrement(t *testing.T) {
	d := NewDecoder()

	upd, err := d.Decode(lapPacket(0, 10, 500, 500, 1, 0, 0, 0))
	require.NoError(t, err)
	assert.False(t, upd.Sample.Penalty)

	upd, err = d.Decode(lapPacket(0, 10.1, 505, 505, 1, 0, 0, 3))
	require.NoError(t, err)
	assert.True(t, upd.Sample.Penalty)

	upd, err = d.Decode(lapPacket(0, 10.2, 510, 510, 1, 0, 0, 3))
	require.NoError(t, err)
	assert.False(t, upd.Sample.Penalty)
}

func TestDecode_OffTrackFlag(t *testing.T) {
	d := NewDecoder()

	upd, err := d.Decode(lapPacket(0, 10, 500, 500, 1, 0, 1, 0))
	require.NoError(t, err)
	assert.True(t, upd.Sample.OffTrack)
}

func TestDecode_EventCodes(t *testing.T) {
	d := NewDecoder()

	upd, err := d.Decode(eventPacket("SSTA"))
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, UpdateEvent, upd.Kind)
	assert.Equal(t, EventSessionStarted, upd.Event)

	// chequered flag is not ours to announce
	upd, err = d.Decode(eventPacket("CHQF"))
	require.NoError(t, err)
	assert.Nil(t, upd)
}

func TestDecode_RejectsBadPackets(t *testing.T) {
	d := NewDecoder()

	_, err := d.Decode([]byte{1, 2, 3})
	assert.Error(t, err)

	wrongFormat := lapPacket(0, 10, 500, 500, 1, 0, 0, 0)
	binary.LittleEndian.PutUint16(wrongFormat[0:], 2024)
	_, err = d.Decode(wrongFormat)
	assert.Error(t, err)

	truncated := telemetryPacket(21, 100, 0, 0, 0, 1, 5000)[:headerLen+5*telemetryCarLen]
	_, err = d.Decode(truncated)
	assert.Error(t, err)
}
