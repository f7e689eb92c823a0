package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/herlein/rflab/pkg/threat"
)

// PublisherConfig configures the MQTT result publisher.
type PublisherConfig struct {
	Broker    string // host:port
	ClientID  string
	Username  string
	Password  string
	TopicBase string // e.g. "rflab/bench-01"
	QoS       byte
}

// DefaultPublisherConfig returns a publisher config with defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Broker:    "localhost:1883",
		ClientID:  "rflab-core",
		TopicBase: "rflab",
		QoS:       0,
	}
}

// Publisher pushes analysis results to an MQTT broker for downstream
// consumers (dashboards, recorders).
type Publisher struct {
	config PublisherConfig
	client mqtt.Client
	log    *slog.Logger
}

// NewPublisher creates a publisher; Connect must be called before use.
// A nil logger falls back to slog.Default.
func NewPublisher(config PublisherConfig, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{config: config, log: log}
}

// Connect dials the broker.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", p.config.Broker))
	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.log.Warn("mqtt connection lost", "err", err)
	}

	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt connect failed: %w", token.Error())
	}

	p.log.Info("mqtt connected", "broker", p.config.Broker)
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(1000)
	}
}

// assessmentEvent is the published threat assessment payload
type assessmentEvent struct {
	Level          string `json:"level"`
	Score          uint16 `json:"score"`
	EntropyBits    uint8  `json:"entropy_bits"`
	HasChecksum    bool   `json:"has_checksum"`
	HasRollingCode bool   `json:"has_rolling_code"`
	IsStatic       bool   `json:"is_static"`
	StaticRatio    uint8  `json:"static_ratio"`
	TimestampMs    int64  `json:"ts_ms"`
}

// PublishAssessment pushes a threat assessment to <base>/threat.
func (p *Publisher) PublishAssessment(a threat.Assessment) error {
	event := assessmentEvent{
		Level:          a.Level.String(),
		Score:          a.VulnerabilityScore,
		EntropyBits:    a.EntropyBits,
		HasChecksum:    a.HasChecksum,
		HasRollingCode: a.HasRollingCode,
		IsStatic:       a.IsStatic,
		StaticRatio:    a.StaticRatio,
		TimestampMs:    time.Now().UnixMilli(),
	}
	return p.publishJSON(p.config.TopicBase+"/threat", event)
}

// detectionEvent is the published device detection payload
type detectionEvent struct {
	DeviceID    uint16 `json:"device_id"`
	Name        string `json:"name"`
	Confidence  uint8  `json:"confidence"`
	TimestampMs int64  `json:"ts_ms"`
}

// PublishDetection pushes a device match to <base>/device.
func (p *Publisher) PublishDetection(deviceID uint16, name string, confidence uint8) error {
	event := detectionEvent{
		DeviceID:    deviceID,
		Name:        name,
		Confidence:  confidence,
		TimestampMs: time.Now().UnixMilli(),
	}
	return p.publishJSON(p.config.TopicBase+"/device", event)
}

func (p *Publisher) publishJSON(topic string, v any) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := p.client.Publish(topic, p.config.QoS, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt publish timeout")
	}
	return token.Error()
}
