package rflab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herlein/rflab/pkg/cluster"
	"github.com/herlein/rflab/pkg/fingerprint"
	"github.com/herlein/rflab/pkg/fixed"
	"github.com/herlein/rflab/pkg/protocol"
	"github.com/herlein/rflab/pkg/signal"
	"github.com/herlein/rflab/pkg/threat"
)

func newCore(t *testing.T) *Core {
	t.Helper()
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PulseCapacity = 10
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.StreamingK = 9
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := New(nil)
	require.NoError(t, err)
	assert.True(t, c.Healthy())
	assert.NotEqual(t, "", c.Session().ID.String())
}

func TestIngestValidation(t *testing.T) {
	c := newCore(t)

	assert.ErrorIs(t, c.OnPulse(2, 100, 0), ErrInvalidPulse)
	assert.ErrorIs(t, c.OnPulse(1, 0, 0), ErrInvalidPulse)
	assert.NoError(t, c.OnPulse(1, 500, 10))
	assert.Equal(t, uint16(1), c.PulseCount())

	tooLong := make([]byte, signal.MaxFrameData+1)
	assert.ErrorIs(t, c.OnFrame(0, 0, 0, 0, tooLong, 0, 0), ErrInvalidFrame)
}

func TestPulseSaturationSetsFlag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PulseCapacity = MinPulses
	c, err := New(cfg)
	require.NoError(t, err)

	for i := 0; i < int(MinPulses)+5; i++ {
		require.NoError(t, c.OnPulse(uint8(i%2), 500, uint32(i)*700))
	}

	assert.Equal(t, uint16(MinPulses), c.PulseCount())
	dropped, _ := c.Dropped()
	assert.Equal(t, uint32(5), dropped)
}

func TestFrameFanout(t *testing.T) {
	c := newCore(t)
	c.StartThreatAnalysis()

	payload := []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}
	for i := 0; i < 60; i++ {
		require.NoError(t, c.OnFrame(uint32(1000+i*5000), 3000, -70, 433920000,
			payload, 0, 0))
	}

	assert.Equal(t, uint16(60), c.FrameCount())

	// Threat engine saw the frames
	a, err := c.AssessThreat()
	require.NoError(t, err)
	assert.Equal(t, uint8(100), a.StaticRatio)

	var snap threat.Assessment
	require.True(t, c.SnapshotAssessment(&snap))
	assert.Equal(t, a, snap)

	// Streaming clustering re-ran at the 50-point boundary
	var clusters cluster.Result
	assert.True(t, c.SnapshotClusters(&clusters))
}

func TestProtocolPipelineViaFacade(t *testing.T) {
	c := newCore(t)

	var h protocol.Hypothesis
	assert.False(t, c.SnapshotHypothesis(&h))
	assert.ErrorIs(t, c.AnalyzeProtocol(), protocol.ErrInsufficientData)

	for i := 0; i < 40; i++ {
		require.NoError(t, c.OnPulse(1, 300, uint32(i)*2500))
		require.NoError(t, c.OnPulse(0, 2000, uint32(i)*2500+300))
	}

	require.NoError(t, c.AnalyzeProtocol())
	require.True(t, c.SnapshotHypothesis(&h))
	assert.Equal(t, protocol.ModulationOOK, h.Modulation)
}

func TestFingerprintFlowViaFacade(t *testing.T) {
	c := newCore(t)

	c.StartFingerprinting()
	assert.Equal(t, uint8(0), c.FingerprintProgress())

	for i := 0; i < 200; i++ {
		require.NoError(t, c.OnFrame(uint32(1000+i*4000), 3200, -68, 315000000,
			[]byte{1, 2, 3, 4, 5, 6, 7, 8}, 0, 0))
		c.OnRSSISample(uint8(90+i%4), uint32(1000+i*4000))
	}
	assert.Equal(t, uint8(20), c.FingerprintProgress())

	c.StopFingerprinting()

	var fp fingerprint.Fingerprint
	require.True(t, c.SnapshotFingerprint(&fp))
	assert.Equal(t, uint32(4000), fp.DriftMean)
	assert.True(t, fp.Verify())

	id, err := c.AddDevice(&fp, "remote-a")
	require.NoError(t, err)
	assert.Equal(t, uint16(1), c.DeviceCount())

	conf, matched, ok := c.MatchFingerprint(&fp)
	require.True(t, ok)
	assert.Equal(t, id, matched)
	assert.Equal(t, uint8(100), conf)

	entry, err := c.Device(id)
	require.NoError(t, err)
	assert.Equal(t, "remote-a", entry.Name)

	require.NoError(t, c.RemoveDevice(id))
	assert.Equal(t, uint16(0), c.DeviceCount())
}

func TestClusteringViaFacade(t *testing.T) {
	c := newCore(t)

	d := &cluster.Dataset{}
	for i := 0; i < 20; i++ {
		d.Add(cluster.Point{X: fixed.FromInt(10), Y: fixed.FromInt(10)})
		d.Add(cluster.Point{X: fixed.FromInt(20), Y: fixed.FromInt(20)})
	}

	result, err := c.RunClustering(d, 2)
	require.NoError(t, err)
	assert.True(t, result.Converged)

	assert.Equal(t, uint8(2), c.FindOptimalK(d, 2, 4))
}

func TestQuickAssessToggle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QuickAssessEnabled = false
	c, err := New(cfg)
	require.NoError(t, err)

	frame := &signal.Frame{Length: 4}
	copy(frame.Data[:], []byte{7, 7, 7, 7})
	assert.Equal(t, threat.Assessment{}, c.QuickAssess(frame))

	c2 := newCore(t)
	a := c2.QuickAssess(frame)
	assert.Equal(t, threat.LevelHigh, a.Level)
}

func TestResetClearsEverything(t *testing.T) {
	c := newCore(t)
	c.StartThreatAnalysis()

	for i := 0; i < 30; i++ {
		require.NoError(t, c.OnPulse(1, 400, uint32(i)*900))
		require.NoError(t, c.OnFrame(uint32(i)*900, 500, -60, 433920000,
			[]byte{1, 2, 3}, 0, 0))
	}

	c.Reset()
	assert.Equal(t, uint16(0), c.PulseCount())
	assert.Equal(t, uint16(0), c.FrameCount())
	assert.True(t, c.Healthy())

	var h protocol.Hypothesis
	assert.False(t, c.SnapshotHypothesis(&h))
	var a threat.Assessment
	assert.False(t, c.SnapshotAssessment(&a))
}

func TestCopyBuffers(t *testing.T) {
	c := newCore(t)
	require.NoError(t, c.OnPulse(1, 250, 100))
	require.NoError(t, c.OnPulse(0, 750, 350))
	require.NoError(t, c.OnFrame(1000, 400, -55, 868350000, []byte{9, 8, 7}, 0, 2))

	pulses := make([]signal.Pulse, 8)
	require.Equal(t, 2, c.CopyPulses(pulses))
	assert.Equal(t, uint16(250), pulses[0].WidthUs)

	frames := make([]signal.Frame, 8)
	require.Equal(t, 1, c.CopyFrames(frames))
	assert.Equal(t, uint8(3), frames[0].Length)
	assert.Equal(t, []byte{9, 8, 7}, frames[0].Payload())
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.Registerer = reg
	c, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, c.OnPulse(1, 100, 0))

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "rflab_ingest_pulses_total" {
			found = true
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestConfigFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.json")

	file := &ConfigFile{
		Name:        "bench",
		Description: "bench capture profile",
		Version:     "1.0",
		Session:     SessionConfigJSON{Name: "bench-01"},
		Buffers:     BufferConfigJSON{PulseCapacity: 2048},
		Clustering:  ClusteringConfigJSON{StreamingK: 4},
		Analysis:    AnalysisConfigJSON{QuickAssessEnabled: true},
	}
	require.NoError(t, SaveConfigFile(file, path))

	loaded, err := LoadConfigFile(path)
	require.NoError(t, err)

	cfg := loaded.ToConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bench-01", cfg.SessionName)
	assert.Equal(t, uint16(2048), cfg.PulseCapacity)
	assert.Equal(t, uint8(4), cfg.StreamingK)
}

func TestConfigFileRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2.0"}`), 0644))

	_, err := LoadConfigFile(path)
	assert.ErrorIs(t, err, ErrConfigVersion)
}
