package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/config"
	"safetywatch/internal/models"
	"safetywatch/internal/validate"
)

const handleTimeout = 10 * time.Second

type Submitter interface {
	Submit(ctx context.Context, in validate.Sensor) (models.SensorReading, error)
}

// Bridge feeds device telemetry published over MQTT into the same ingestion
// path the HTTP endpoint uses. The device id comes from the topic.
type Bridge struct {
	cfg       config.MQTTConfig
	submitter Submitter
	log       zerolog.Logger
	client    mqtt.Client
	ctx       context.Context
}

func NewBridge(cfg config.MQTTConfig, submitter Submitter, log zerolog.Logger) *Bridge {
	return &Bridge{
		cfg:       cfg,
		submitter: submitter,
		log:       log.With().Str("component", "mqtt").Logger(),
	}
}

func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
	}
	if b.cfg.Password != "" {
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	// Subscriptions are lost with a clean session, so renew them on every
	// (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		if token := c.Subscribe(b.cfg.Topic, b.cfg.QoS, b.onMessage); token.Wait() && token.Error() != nil {
			b.log.Error().Err(token.Error()).Str("topic", b.cfg.Topic).Msg("subscribe failed")
			return
		}
		b.log.Info().Str("topic", b.cfg.Topic).Msg("subscribed to device telemetry")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warn().Err(err).Msg("mqtt connection lost")
	})

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect mqtt broker %s: %w", b.cfg.Broker, token.Error())
	}
	return nil
}

func (b *Bridge) Stop() {
	if b.client == nil {
		return
	}
	b.client.Unsubscribe(b.cfg.Topic).WaitTimeout(time.Second)
	b.client.Disconnect(250)
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	b.handle(msg.Topic(), msg.Payload())
}

func (b *Bridge) handle(topic string, body []byte) {
	log := b.log.With().Str("topic", topic).Logger()

	deviceID, ok := DeviceIDFromTopic(b.cfg.Topic, topic)
	if !ok {
		log.Warn().Msg("telemetry topic without device id")
		return
	}

	payload, err := Decode(Sniff(body), body)
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("undecodable telemetry")
		return
	}
	if payload.DeviceID != "" && payload.DeviceID != deviceID {
		log.Warn().Str("device_id", deviceID).Str("payload_device_id", payload.DeviceID).Msg("device id mismatch, dropping")
		return
	}
	payload.DeviceID = deviceID

	base := b.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, handleTimeout)
	defer cancel()

	reading, err := b.submitter.Submit(ctx, payload.Sensor())
	if err != nil {
		level, kind, code := zerolog.WarnLevel, "", ""
		if appErr, ok := apperr.As(err); ok {
			kind, code = string(appErr.Kind), appErr.Code
			if appErr.Kind == apperr.KindInternal {
				level = zerolog.ErrorLevel
			}
		}
		log.WithLevel(level).
			Err(err).
			Str("device_id", deviceID).
			Str("kind", kind).
			Str("code", code).
			Msg("telemetry rejected")
		return
	}
	log.Debug().Str("device_id", deviceID).Str("reading_id", reading.ID).Msg("telemetry stored")
}

// DeviceIDFromTopic returns the topic level matched by the single-level
// wildcard of filter.
func DeviceIDFromTopic(filter, topic string) (string, bool) {
	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")
	if len(filterParts) != len(topicParts) {
		return "", false
	}
	id := ""
	for i, part := range filterParts {
		switch part {
		case "+":
			if id != "" || topicParts[i] == "" {
				return "", false
			}
			id = topicParts[i]
		default:
			if part != topicParts[i] {
				return "", false
			}
		}
	}
	return id, id != ""
}
