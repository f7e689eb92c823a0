package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/rflab/pkg/signal"
)

func sampleFingerprint() Fingerprint {
	fp := Fingerprint{
		DriftMean:         5000,
		DriftVariance:     250,
		RiseTimeAvg:       12,
		FallTimeAvg:       14,
		ClockStabilityPPM: 40,
	}
	for i := range fp.RSSISignature {
		fp.RSSISignature[i] = byte(60 + i)
	}
	fp.Seal()
	return fp
}

func TestHashDeterministic(t *testing.T) {
	a := sampleFingerprint()
	b := sampleFingerprint()

	assert.Equal(t, a.UniqueHash, b.UniqueHash)
	assert.True(t, a.Verify())

	// Any field write invalidates the hash until resealed
	b.DriftMean++
	assert.False(t, b.Verify())
	b.Seal()
	assert.True(t, b.Verify())
	assert.NotEqual(t, a.UniqueHash, b.UniqueHash)
}

func TestCRC16CCITTKnownValue(t *testing.T) {
	// "123456789" check value for CRC-16/CCITT-FALSE
	assert.Equal(t, uint16(0x29B1), crc16CCITT([]byte("123456789")))
}

func TestSimilaritySelf(t *testing.T) {
	fp := sampleFingerprint()
	assert.Equal(t, uint8(100), Similarity(&fp, &fp))
}

func TestSimilaritySymmetric(t *testing.T) {
	a := sampleFingerprint()
	b := sampleFingerprint()
	b.DriftMean += 700
	b.ClockStabilityPPM = 90
	b.RSSISignature[3] += 20

	ab := int(Similarity(&a, &b))
	ba := int(Similarity(&b, &a))
	assert.InDelta(t, ab, ba, 1)
}

func TestSimilarityUnrelated(t *testing.T) {
	a := sampleFingerprint()
	var b Fingerprint
	b.DriftMean = 4000000
	b.Seal()
	assert.Equal(t, uint8(0), Similarity(&a, &b))
}

func TestFileRoundTrip(t *testing.T) {
	fp := sampleFingerprint()

	var buf [64]byte
	n, err := EncodeFile(buf[:], &fp, "garage-remote")
	require.NoError(t, err)
	assert.Equal(t, 31+len("garage-remote")+1, n)

	decoded, name, err := DecodeFile(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, fp, decoded)
	assert.Equal(t, "garage-remote", name)
	assert.True(t, decoded.Verify())
}

func TestFileLayout(t *testing.T) {
	fp := Fingerprint{DriftMean: 0x04030201, RiseTimeAvg: 0x0605}
	fp.Seal()

	var buf [64]byte
	n, err := EncodeFile(buf[:], &fp, "x")
	require.NoError(t, err)
	require.Equal(t, 33, n)

	// Little-endian field layout
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf[0:4])
	assert.Equal(t, []byte{0x05, 0x06}, buf[8:10])
	assert.Equal(t, byte(fp.UniqueHash), buf[29])
	assert.Equal(t, byte(fp.UniqueHash>>8), buf[30])
	assert.Equal(t, byte('x'), buf[31])
	assert.Equal(t, byte(0), buf[32])
}

func TestFileErrors(t *testing.T) {
	fp := sampleFingerprint()
	var small [8]byte
	_, err := EncodeFile(small[:], &fp, "a")
	assert.ErrorIs(t, err, ErrShortFile)

	_, err = EncodeFile(make([]byte, 64), &fp, "a-name-well-beyond-limit")
	assert.ErrorIs(t, err, ErrNameTooLong)

	_, _, err = DecodeFile([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortFile)
}

func TestDeviceTable(t *testing.T) {
	var tbl DeviceTable
	fp := sampleFingerprint()

	id0, err := tbl.Add(&fp, "first", 100)
	require.NoError(t, err)
	id1, err := tbl.Add(&fp, "second", 200)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), id0)
	assert.Equal(t, uint16(1), id1)
	assert.Equal(t, uint16(2), tbl.Count())

	entry, err := tbl.Get(id1)
	require.NoError(t, err)
	assert.Equal(t, "second", entry.Name)

	found, err := tbl.FindByName("first")
	require.NoError(t, err)
	assert.Equal(t, id0, found)

	require.NoError(t, tbl.Remove(id0))
	assert.Equal(t, uint16(1), tbl.Count())
	entry, err = tbl.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "second", entry.Name)

	assert.ErrorIs(t, tbl.Remove(9), ErrNoSuchDevice)
}

func TestDeviceTableFull(t *testing.T) {
	var tbl DeviceTable
	fp := sampleFingerprint()
	for i := 0; i < MaxDevices; i++ {
		_, err := tbl.Add(&fp, "dev", 0)
		require.NoError(t, err)
	}
	_, err := tbl.Add(&fp, "overflow", 0)
	assert.ErrorIs(t, err, ErrTableFull)
}

// feedFrames drives the engine with periodic frames of a fixed shape,
// returning the timestamp for the next frame.
func feedFrames(e *Engine, n int, periodUs uint32, rssi int16, startTs uint32) uint32 {
	ts := startTs
	for i := 0; i < n; i++ {
		frame := &signal.Frame{
			TimestampUs: ts,
			DurationUs:  3200,
			RSSIDBm:     rssi,
			FrequencyHz: 433920000,
			Length:      8,
		}
		e.ProcessFrame(frame)
		ts += periodUs
	}
	return ts
}

func TestEngineCaptureToMatching(t *testing.T) {
	e := NewEngine(nil)
	assert.Equal(t, StateIdle, e.State())

	e.Start()
	assert.Equal(t, StateSampling, e.State())
	assert.Equal(t, uint8(0), e.Progress())

	next := feedFrames(e, SampleCount/2, 5000, -70, 1000)
	assert.Equal(t, uint8(50), e.Progress())

	var fp Fingerprint
	assert.False(t, e.Snapshot(&fp))

	feedFrames(e, SampleCount/2, 5000, -70, next)
	assert.Equal(t, StateMatching, e.State())

	require.True(t, e.Snapshot(&fp))
	assert.True(t, fp.Verify())
	assert.Equal(t, uint32(5000), fp.DriftMean)
	// Perfectly periodic frames drift nothing and hold a stable clock
	assert.Equal(t, uint32(0), fp.DriftVariance)
	assert.Equal(t, uint8(0), fp.ClockStabilityPPM)
	assert.Equal(t, uint8(-70+128), fp.RSSISignature[0])
}

func TestEngineFinishPartialCapture(t *testing.T) {
	e := NewEngine(nil)
	e.Start()
	feedFrames(e, 60, 4000, -80, 1000)

	e.Finish()
	assert.Equal(t, StateMatching, e.State())

	var fp Fingerprint
	require.True(t, e.Snapshot(&fp))
	assert.Equal(t, uint32(4000), fp.DriftMean)
}

func TestEngineIgnoresFramesWhenIdle(t *testing.T) {
	e := NewEngine(nil)
	feedFrames(e, 10, 1000, -60, 1000)
	assert.Equal(t, StateIdle, e.State())

	var fp Fingerprint
	assert.False(t, e.Snapshot(&fp))
}

func TestEngineRSSISlopes(t *testing.T) {
	e := NewEngine(nil)
	e.Start()

	// Triangle wave: rising by 4, falling by 2
	level := uint8(100)
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			level += 4
		} else {
			level -= 2
		}
		e.ProcessRSSISample(level, uint32(i)*10)
	}
	feedFrames(e, SampleCount, 5000, -70, 1000)

	var fp Fingerprint
	require.True(t, e.Snapshot(&fp))
	assert.Equal(t, uint16(4), fp.RiseTimeAvg)
	assert.Equal(t, uint16(2), fp.FallTimeAvg)
}

func TestEngineMatchAndTemporal(t *testing.T) {
	e := NewEngine(nil)
	known := sampleFingerprint()
	id, err := e.AddDevice(&known, "keyfob")
	require.NoError(t, err)

	probe := known
	probe.DriftMean += 50
	probe.Seal()

	conf, matchedID, ok := e.Match(&probe)
	require.True(t, ok)
	assert.Equal(t, id, matchedID)
	assert.GreaterOrEqual(t, conf, uint8(ConfidenceHigh))

	rec, found := e.TemporalRecordFor(id)
	require.True(t, found)
	assert.Equal(t, uint32(1), rec.HistoryCount)
	assert.False(t, rec.DriftDetected)

	// A distant probe drifts past the 20% threshold
	drifted := known
	drifted.DriftMean += 3000
	drifted.Seal()
	mag, detected := e.CheckDrift(id, &drifted)
	assert.True(t, detected)
	assert.Greater(t, mag, uint8(driftThresholdPercent))
}

func TestEngineMatchNone(t *testing.T) {
	e := NewEngine(nil)
	fp := sampleFingerprint()
	_, _, ok := e.Match(&fp)
	assert.False(t, ok)
}

func TestDetectCounterfeit(t *testing.T) {
	e := NewEngine(nil)

	genuine := sampleFingerprint()
	_, err := e.AddDevice(&genuine, "genuine")
	require.NoError(t, err)

	other := genuine
	other.DriftMean += 2000
	other.ClockStabilityPPM = 200
	other.Seal()
	_, err = e.AddDevice(&other, "other")
	require.NoError(t, err)

	// A probe near "other" claiming to be "genuine" is flagged
	probe := other
	probe.DriftMean += 10
	probe.Seal()
	assert.Equal(t, uint8(0), e.DetectCounterfeit(&probe, "genuine"))

	// The same probe claiming its true identity passes
	assert.Greater(t, e.DetectCounterfeit(&probe, "other"), uint8(ConfidenceHigh))

	// Unknown claimed device yields zero confidence
	assert.Equal(t, uint8(0), e.DetectCounterfeit(&probe, "missing"))
}

func TestEngineLearning(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.StartLearning("new-device"))
	assert.Equal(t, StateLearning, e.State())

	feedFrames(e, SampleCount, 6000, -65, 1000)

	assert.Equal(t, uint16(1), e.DeviceCount())
	id, err := e.table.FindByName("new-device")
	require.NoError(t, err)

	entry, err := e.Device(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(6000), entry.Fingerprint.DriftMean)
}

func TestEngineReset(t *testing.T) {
	e := NewEngine(nil)
	fp := sampleFingerprint()
	_, err := e.AddDevice(&fp, "dev")
	require.NoError(t, err)

	e.Reset()
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, uint16(0), e.DeviceCount())
}

func TestEngineSymbolPeriodHint(t *testing.T) {
	e := NewEngine(nil)
	e.SetSymbolPeriodHint(400)
	e.Start()

	// Zero-length frames fall back to the protocol engine's hint
	ts := uint32(1000)
	for i := 0; i < 60; i++ {
		e.ProcessFrame(&signal.Frame{TimestampUs: ts, DurationUs: 3200, RSSIDBm: -70})
		ts += 5000
	}
	require.Equal(t, uint16(60), e.symbolCount)

	e.Finish()
	var fp Fingerprint
	require.True(t, e.Snapshot(&fp))
	assert.Equal(t, uint8(0), fp.ClockStabilityPPM)
}
