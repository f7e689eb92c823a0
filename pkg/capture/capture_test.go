package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/rflab/pkg/signal"
)

func record(level uint8, width uint16, ts uint32) []byte {
	return []byte{
		level,
		byte(width >> 8), byte(width),
		byte(ts >> 24), byte(ts >> 16), byte(ts >> 8), byte(ts),
	}
}

func TestParsePulseRecords(t *testing.T) {
	stream := append(record(1, 420, 1000), record(0, 830, 1420)...)

	var out [8]signal.Pulse
	n, consumed, err := ParsePulseRecords(out[:], stream)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, len(stream), consumed)

	assert.Equal(t, signal.Pulse{Level: 1, WidthUs: 420, TimestampUs: 1000}, out[0])
	assert.Equal(t, signal.Pulse{Level: 0, WidthUs: 830, TimestampUs: 1420}, out[1])
}

func TestParsePulseRecordsPartialTail(t *testing.T) {
	stream := append(record(1, 100, 50), 0x01, 0x00)

	var out [8]signal.Pulse
	n, consumed, err := ParsePulseRecords(out[:], stream)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// The partial record is left for the next read
	assert.Equal(t, PulseRecordSize, consumed)
}

func TestParsePulseRecordsBadLevel(t *testing.T) {
	stream := record(7, 100, 50)
	var out [4]signal.Pulse
	_, _, err := ParsePulseRecords(out[:], stream)
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestParsePulseRecordsZeroWidth(t *testing.T) {
	stream := record(1, 0, 50)
	var out [4]signal.Pulse
	_, _, err := ParsePulseRecords(out[:], stream)
	assert.ErrorIs(t, err, ErrBadRecord)
}

func TestCalcFreqRegs(t *testing.T) {
	// 433.92 MHz at a 24 MHz crystal: FREQ = 433920000 * 65536 / 24e6
	freq2, freq1, freq0 := CalcFreqRegs(433920000)
	num := uint32(freq2)<<16 | uint32(freq1)<<8 | uint32(freq0)
	assert.Equal(t, uint32(uint64(433920000)*65536/24000000), num)
}

func TestIsValidFrequency(t *testing.T) {
	assert.True(t, IsValidFrequency(315000000))
	assert.True(t, IsValidFrequency(433920000))
	assert.True(t, IsValidFrequency(915000000))
	assert.False(t, IsValidFrequency(100000000))
	assert.False(t, IsValidFrequency(500000000))
}

func TestProfileByName(t *testing.T) {
	p, ok := ProfileByName("433-ook")
	require.True(t, ok)
	assert.Equal(t, uint32(433920000), p.FrequencyHz)
	assert.Equal(t, uint8(ModASKOOK), p.Modulation)

	_, ok = ProfileByName("nope")
	assert.False(t, ok)
}
