package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/rflab/pkg/fingerprint"
	"github.com/herlein/rflab/pkg/signal"
)

func TestWriteFramesCSV(t *testing.T) {
	frames := []signal.Frame{
		{TimestampUs: 1000, FrequencyHz: 433920000, RSSIDBm: -72, Length: 3},
		{TimestampUs: 6000, FrequencyHz: 315000000, RSSIDBm: -85, Length: 2},
	}
	copy(frames[0].Data[:], []byte{0xDE, 0xAD, 0xBF})
	copy(frames[1].Data[:], []byte{0x01, 0x02})

	var buf bytes.Buffer
	require.NoError(t, WriteFramesCSV(&buf, frames))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp_us,frequency_hz,rssi_dbm,data_hex", lines[0])
	assert.Equal(t, "1000,433920000,-72,deadbf", lines[1])
	assert.Equal(t, "6000,315000000,-85,0102", lines[2])
}

func TestSaveLoadFingerprint(t *testing.T) {
	fp := fingerprint.Fingerprint{
		DriftMean:         7000,
		DriftVariance:     120,
		RiseTimeAvg:       3,
		FallTimeAvg:       5,
		ClockStabilityPPM: 12,
	}
	fp.Seal()

	path := filepath.Join(t.TempDir(), "device.fpr")
	require.NoError(t, SaveFingerprint(path, &fp, "door-sensor"))

	loaded, name, err := LoadFingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, fp, loaded)
	assert.Equal(t, "door-sensor", name)
	assert.True(t, loaded.Verify())
}

func TestSaveLoadPulseBlob(t *testing.T) {
	pulses := []signal.Pulse{
		{Level: 1, WidthUs: 350},
		{Level: 0, WidthUs: 700},
		{Level: 1, WidthUs: 350},
		{Level: 0, WidthUs: 12000},
	}

	path := filepath.Join(t.TempDir(), "capture.psq")
	require.NoError(t, SavePulseBlob(path, pulses))

	loaded, err := LoadPulseBlob(path)
	require.NoError(t, err)
	require.Len(t, loaded, len(pulses))
	for i := range pulses {
		assert.Equal(t, pulses[i].Level, loaded[i].Level)
		assert.Equal(t, pulses[i].WidthUs, loaded[i].WidthUs)
	}
}

func TestSaveReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, SaveReport(path, "RF THREAT ANALYSIS REPORT\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RF THREAT ANALYSIS REPORT\n", string(data))
}

func TestPublisherRequiresConnection(t *testing.T) {
	p := NewPublisher(DefaultPublisherConfig(), nil)
	err := p.PublishDetection(1, "dev", 95)
	assert.Error(t, err)
}
