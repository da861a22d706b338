// Package learning implements the learning service (spec component C12):
// a single active session that walks a remote's buttons through press/hold
// captures, aggregating raw IR frames via internal/irsignal and persisting
// the result through internal/catalog.
package learning

import (
	"regexp"
	"time"
)

var autoNamePattern = regexp.MustCompile(`^BTN_(\d{4})$`)

// Settings are the tunables apply_learning_settings updates atomically.
type Settings struct {
	AggregateRoundToUs     int
	AggregateMinMatchRatio float64
	HoldIdleTimeoutMs      int
}

// DefaultSettings mirrors the defaults baked into the catalog schema.
var DefaultSettings = Settings{
	AggregateRoundToUs:     50,
	AggregateMinMatchRatio: 0.6,
	HoldIdleTimeoutMs:      400,
}

// LogEntry is one line of a session's activity log.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

const (
	maxSessionLogs  = 200
	dropOldestCount = 100
)

// Session is the one active learning session, per spec §4.12.
type Session struct {
	RemoteID        string
	RemoteName      string
	AgentID         string
	Extend          bool
	StartedAt       time.Time
	NextButtonIndex int
	LastButtonID    *string
	LastButtonName  *string
	Logs            []LogEntry

	learnStarted bool
}

func (s *Session) appendLog(entry LogEntry) {
	if len(s.Logs) >= maxSessionLogs {
		s.Logs = append([]LogEntry(nil), s.Logs[dropOldestCount:]...)
	}
	s.Logs = append(s.Logs, entry)
}

// StatusPayload is the broadcast/poll shape of the active session, per spec
// §4.12. LearnEnabled is false (and every other field zero) when no session
// is active.
type StatusPayload struct {
	LearnEnabled    bool       `json:"learn_enabled"`
	RemoteID        string     `json:"remote_id,omitempty"`
	RemoteName      string     `json:"remote_name,omitempty"`
	Extend          bool       `json:"extend,omitempty"`
	StartedAt       string     `json:"started_at,omitempty"`
	LastButtonID    *string    `json:"last_button_id,omitempty"`
	LastButtonName  *string    `json:"last_button_name,omitempty"`
	NextButtonIndex int        `json:"next_button_index,omitempty"`
	Logs            []LogEntry `json:"logs"`
}

func (s *Session) status() StatusPayload {
	return StatusPayload{
		LearnEnabled:    true,
		RemoteID:        s.RemoteID,
		RemoteName:      s.RemoteName,
		Extend:          s.Extend,
		StartedAt:       s.StartedAt.UTC().Format(time.RFC3339Nano),
		LastButtonID:    s.LastButtonID,
		LastButtonName:  s.LastButtonName,
		NextButtonIndex: s.NextButtonIndex,
		Logs:            s.Logs,
	}
}

func disabledStatus() StatusPayload {
	return StatusPayload{LearnEnabled: false, Logs: []LogEntry{}}
}

// CaptureRequest is the input to Service.Capture.
type CaptureRequest struct {
	RemoteID   string  `json:"remote_id"`
	Mode       string  `json:"mode"` // "press" or "hold"
	Takes      int     `json:"takes,omitempty"`
	TimeoutMs  int     `json:"timeout_ms"`
	Overwrite  bool    `json:"overwrite,omitempty"`
	ButtonName *string `json:"button_name,omitempty"`
}

// CaptureResult summarizes a completed capture.
type CaptureResult struct {
	ButtonID    string  `json:"button_id"`
	ButtonName  string  `json:"button_name"`
	Mode        string  `json:"mode"`
	Quality     float64 `json:"quality"`
	RepeatCount int     `json:"repeat_count,omitempty"` // hold only
}
