// Package journal records capture lifecycle events and serves the recent
// attendance history.
package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"fieldattend/internal/queue"
)

// Event types published by the capture controller.
const (
	TypeSessionStarted    = "session.started"
	TypeAcquisitionFailed = "acquisition.failed"
	TypeCameraReady       = "camera.ready"
	TypeCaptured          = "capture.completed"
	TypeSubmitted         = "attendance.submitted"
	TypeSubmitFailed      = "attendance.failed"
	TypeCancelled         = "session.cancelled"
)

// Event is one lifecycle transition as carried on the queue.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	EmployeeID string    `json:"employee_id,omitempty"`
	Action     string    `json:"action"`
	State      string    `json:"state"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Address    string    `json:"address,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	OccurredAt time.Time `json:"occurred_at"`
	Error      string    `json:"error,omitempty"`
	ReceiptID  string    `json:"receipt_id,omitempty"`
}

// Message encodes e for the queue.
func (e Event) Message() (queue.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{Type: e.Type, Body: body}, nil
}

// DecodeEvent parses a queue message.
func DecodeEvent(msg queue.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.SessionID == "" {
		return Event{}, fmt.Errorf("decode event: missing id or session id")
	}
	if e.Type == "" {
		e.Type = msg.Type
	}
	return e, nil
}

// Entry is a stored event.
type Entry struct {
	Event
	RecordedAt time.Time `json:"recorded_at"`
}

// Filter narrows List results.
type Filter struct {
	EmployeeID string
	Type       string
	Limit      int
	Offset     int
}

func (f Filter) normalize() Filter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
