package logs

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/protocol"
)

const (
	maxMessageLen    = 300
	maxCategoryLen   = 40
	maxIDLen         = 80
	maxMetaDepth     = 3
	maxMetaKeys      = 16
	maxMetaListItems = 12
	maxMetaStringLen = 240
)

// Event is the unsanitized event an agent subsystem logs.
type Event struct {
	Level     protocol.LogLevel
	Category  string
	Message   string
	RequestID string
	ErrorCode string
	Meta      map[string]any
}

// Sink receives every sanitized event regardless of dispatch level, used by
// the local-transport agent to write straight into the hub's ring without a
// network hop.
type Sink interface {
	Append(agentID string, ev protocol.LogEvent)
}

// Reporter sanitizes and dispatches log events for one agent.
type Reporter struct {
	mqttClient mqtt.Client
	agentID    string
	minLevel   protocol.LogLevel
	local      Sink
	log        zerolog.Logger
}

func NewReporter(mqttClient mqtt.Client, agentID string, minLevel protocol.LogLevel, local Sink, log zerolog.Logger) *Reporter {
	return &Reporter{
		mqttClient: mqttClient,
		agentID:    agentID,
		minLevel:   minLevel,
		local:      local,
		log:        log.With().Str("component", "log_reporter").Logger(),
	}
}

// Log sanitizes ev, always writes it to the local sink (if any) and the
// process log, and dispatches it over MQTT only when its level meets the
// configured minimum.
func (r *Reporter) Log(ev Event) {
	sanitized := Sanitize(ev)

	logLine := r.log.With().Str("category", sanitized.Category).Logger()
	switch sanitized.Level {
	case protocol.LogDebug:
		logLine.Debug().Msg(sanitized.Message)
	case protocol.LogWarn:
		logLine.Warn().Msg(sanitized.Message)
	case protocol.LogError:
		logLine.Error().Msg(sanitized.Message)
	default:
		logLine.Info().Msg(sanitized.Message)
	}

	if r.local != nil {
		r.local.Append(r.agentID, sanitized)
	}

	if !sanitized.Level.AtLeast(r.minLevel) {
		return
	}
	if r.mqttClient == nil {
		return
	}

	body, err := json.Marshal(sanitized)
	if err != nil {
		r.log.Error().Err(err).Msg("marshal log event")
		return
	}
	token := r.mqttClient.Publish(protocol.LogsTopic(r.agentID), 0, false, body)
	if !token.WaitTimeout(defaultPublishWait) {
		r.log.Warn().Msg("log publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		r.log.Warn().Err(err).Msg("log publish failed")
	}
}

// Sanitize truncates and bounds an Event into the wire/storage shape, per
// the agent-side field limits.
func Sanitize(ev Event) protocol.LogEvent {
	level := ev.Level
	if level == "" {
		level = protocol.LogInfo
	}
	return protocol.LogEvent{
		Timestamp: nowRFC3339(),
		Level:     level,
		Category:  truncate(ev.Category, maxCategoryLen),
		Message:   truncate(ev.Message, maxMessageLen),
		RequestID: truncate(ev.RequestID, maxIDLen),
		ErrorCode: truncate(ev.ErrorCode, maxIDLen),
		Meta:      sanitizeMeta(ev.Meta, 1),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sanitizeMeta(m map[string]any, depth int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	count := 0
	for k, v := range m {
		if count >= maxMetaKeys {
			break
		}
		out[truncate(k, maxCategoryLen)] = sanitizeValue(v, depth)
		count++
	}
	return out
}

func sanitizeValue(v any, depth int) any {
	switch val := v.(type) {
	case string:
		return truncate(val, maxMetaStringLen)
	case map[string]any:
		if depth >= maxMetaDepth {
			return fmt.Sprintf("<map depth %d truncated>", depth+1)
		}
		return sanitizeMeta(val, depth+1)
	case []any:
		if depth >= maxMetaDepth {
			return fmt.Sprintf("<list depth %d truncated>", depth+1)
		}
		n := len(val)
		if n > maxMetaListItems {
			n = maxMetaListItems
		}
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = sanitizeValue(val[i], depth+1)
		}
		return out
	default:
		return val
	}
}
