// Package publish pushes crossing decisions to remote consumers over a gRPC
// server stream and an MQTT broker.
package publish

import (
	"encoding/json"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/crosswalk/internal/crossing"
)

// Payload is the wire shape shared by every transport. Per-detection
// annotations are left out to keep messages small.
type Payload struct {
	DeviceID        string            `json:"device_id,omitempty"`
	TimestampMs     int64             `json:"ts"`
	Seq             uint64            `json:"seq"`
	Decision        crossing.Decision `json:"decision"`
	Signals         crossing.Signals  `json:"signals"`
	MaxVehicleSpeed float64           `json:"max_vehicle_speed_px_s"`
}

// NewPayload flattens ev for transport.
func NewPayload(deviceID string, ev crossing.Event) Payload {
	return Payload{
		DeviceID:        deviceID,
		TimestampMs:     ev.Timestamp.UnixMilli(),
		Seq:             ev.Seq,
		Decision:        ev.Decision,
		Signals:         ev.Signals,
		MaxVehicleSpeed: ev.MaxVehicleSpeed,
	}
}

// Time returns the capture time carried by p.
func (p Payload) Time() time.Time { return time.UnixMilli(p.TimestampMs).UTC() }

// toStruct converts p to a protobuf Struct via its JSON form.
func (p Payload) toStruct() (*structpb.Struct, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func payloadFromStruct(s *structpb.Struct) (Payload, error) {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return Payload{}, err
	}
	var p Payload
	err = json.Unmarshal(b, &p)
	return p, err
}
