package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status is the connection/device status carried by a Reading.
// Values written by the service are StatusOk and StatusNotConnected; a device may report its own.
type Status string

const (
	StatusOk           Status = "Ok"
	StatusNotConnected Status = "Not connected"
)

// Slot is the stable 1-based identity of a configured source.
type Slot int

// Reading is the latest measurement for one slot. Nil pointers encode as null.
type Reading struct {
	WeightNet     *float64 `json:"WeightNet"`
	WeightGross   *float64 `json:"WeightGross"`
	Status        Status   `json:"Status"`
	DeviceMessage *string  `json:"DeviceMessage"`
}

// DisconnectedReading is the initial value of every slot.
func DisconnectedReading() Reading {
	return Reading{Status: StatusNotConnected}
}

// ParseReading decodes a device frame. Only JSON objects are accepted.
// An empty status is reported as StatusOk since a frame only arrives over an open link.
func ParseReading(data []byte) (Reading, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Reading{}, fmt.Errorf("%w: expected JSON object", ErrInvalidReading)
	}

	var r Reading
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Reading{}, fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	if r.Status == "" {
		r.Status = StatusOk
	}
	return r, nil
}
