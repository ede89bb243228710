package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/yanqian/solar-forecast/internal/domain/forecast"
)

const (
	defaultTopic = "solar/forecast"
	qosAtLeast   = 1
)

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	Retained bool
	Timeout  time.Duration
}

// tokenPublisher is the subset of mqtt.Client used here.
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher pushes forecast summaries to an MQTT topic.
type MQTTPublisher struct {
	client  tokenPublisher
	conn    mqtt.Client
	topic   string
	retain  bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	p := newMQTTPublisher(client, cfg, logger)
	p.conn = client
	p.logger.Info("connected to mqtt broker", "broker", cfg.Broker, "topic", p.topic)
	return p, nil
}

func newMQTTPublisher(client tokenPublisher, cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	topic := cfg.Topic
	if topic == "" {
		topic = defaultTopic
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{
		client:  client,
		topic:   topic,
		retain:  cfg.Retained,
		timeout: timeout,
		logger:  logger.With("component", "publish.mqtt"),
	}
}

// Publish implements forecast.Publisher.
func (p *MQTTPublisher) Publish(ctx context.Context, res forecast.Result) error {
	payload, err := json.Marshal(newMessage(res))
	if err != nil {
		return fmt.Errorf("encode forecast message: %w", err)
	}
	token := p.client.Publish(p.topic, qosAtLeast, p.retain, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to %s timed out after %s", p.topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	p.logger.Debug("forecast published", "topic", p.topic, "run_id", res.Metadata.RunID)
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}

type message struct {
	RunID         string             `json:"run_id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Latitude      float64            `json:"lat"`
	Longitude     float64            `json:"lon"`
	TotalKWh      float64            `json:"total_kwh"`
	PeakKW        float64            `json:"peak_kw"`
	AvgKWPerDay   float64            `json:"avg_kw_per_day"`
	DateRange     forecast.DateRange `json:"date_range"`
	WeatherSource string             `json:"weather_source"`
	Hourly        []hourlyPoint      `json:"hourly"`
}

type hourlyPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	PredictedKW float64   `json:"predicted_kw"`
}

func newMessage(res forecast.Result) message {
	msg := message{
		RunID:       res.Metadata.RunID,
		GeneratedAt: res.Metadata.GeneratedAt,
		Latitude:    res.Metadata.Latitude,
		Longitude:   res.Metadata.Longitude,
		TotalKWh:    res.Summary.TotalKWh,
		PeakKW:      res.Summary.PeakKW,
		AvgKWPerDay: res.Summary.AvgKWPerDay,
		DateRange:   res.Summary.DateRange,
		Hourly:      make([]hourlyPoint, 0, len(res.Data)),
	}
	if res.WeatherQuality != nil {
		msg.WeatherSource = res.WeatherQuality.Source
	}
	for _, rec := range res.Data {
		msg.Hourly = append(msg.Hourly, hourlyPoint{Timestamp: rec.Timestamp, PredictedKW: rec.PredictedKW})
	}
	return msg
}

var _ forecast.Publisher = (*MQTTPublisher)(nil)
