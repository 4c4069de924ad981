package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"safetywatch/internal/validate"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

var ErrUnsupportedContentType = errors.New("unsupported content type")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ingest: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("ingest: cbor decoder: " + err.Error())
	}
}

// Payload is the telemetry document a device sends, over HTTP or MQTT.
type Payload struct {
	DeviceID        string   `json:"device_id" cbor:"device_id"`
	HeartRate       *float64 `json:"heart_rate,omitempty" cbor:"heart_rate,omitempty"`
	BodyTemperature *float64 `json:"body_temperature,omitempty" cbor:"body_temperature,omitempty"`
	FallDetected    *bool    `json:"fall_detected,omitempty" cbor:"fall_detected,omitempty"`
	GasLevel        *float64 `json:"gas_level,omitempty" cbor:"gas_level,omitempty"`
	GasStatus       *string  `json:"gas_status,omitempty" cbor:"gas_status,omitempty"`
	MotionStatus    *string  `json:"motion_status,omitempty" cbor:"motion_status,omitempty"`
	HealthStatus    *string  `json:"health_status,omitempty" cbor:"health_status,omitempty"`
}

func (p Payload) Sensor() validate.Sensor {
	return validate.Sensor{
		DeviceID:        p.DeviceID,
		HeartRate:       p.HeartRate,
		BodyTemperature: p.BodyTemperature,
		FallDetected:    p.FallDetected,
		GasLevel:        p.GasLevel,
		GasStatus:       p.GasStatus,
		MotionStatus:    p.MotionStatus,
		HealthStatus:    p.HealthStatus,
	}
}

// Decode parses body according to contentType. An empty content type is
// treated as JSON.
func Decode(contentType string, body []byte) (Payload, error) {
	mediaType := ContentTypeJSON
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
		}
		mediaType = mt
	}

	var p Payload
	switch mediaType {
	case ContentTypeJSON:
		if err := json.Unmarshal(body, &p); err != nil {
			return Payload{}, fmt.Errorf("decode json payload: %w", err)
		}
	case ContentTypeCBOR:
		if err := decMode.Unmarshal(body, &p); err != nil {
			return Payload{}, fmt.Errorf("decode cbor payload: %w", err)
		}
	default:
		return Payload{}, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}
	return p, nil
}

// Sniff guesses the encoding of a payload that arrived without a content
// type. JSON documents start with '{'; anything else is taken as CBOR.
func Sniff(body []byte) string {
	if trimmed := bytes.TrimLeft(body, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '{' {
		return ContentTypeJSON
	}
	return ContentTypeCBOR
}

// EncodeCBOR is used by device simulators and tests.
func EncodeCBOR(p Payload) ([]byte, error) {
	return encMode.Marshal(p)
}
