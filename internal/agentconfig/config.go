// Package agentconfig handles agent process configuration from environment
// variables, the way the teacher's internal/config/config.go loads the
// nixfleet agent's.
package agentconfig

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all irhub-agent configuration.
type Config struct {
	// Connection
	MqttBrokerURL string // tcp://host:1883 or ssl://host:8883
	MqttUsername  string
	MqttPassword  string
	MqttClientID  string

	// Identity
	AgentDataDir string // holds the persisted agent_id file
	AgentID      string // loaded/generated by LoadOrCreateAgentID at startup, not from env directly
	ReadableName string
	SwVersion    string
	CanSend      bool
	CanLearn     bool

	// Hardware
	ReceiverBin    string
	SenderBin      string
	ReceiverDevice string
	SenderDevice   string
	Emitters       []string
	ScratchDir     string

	// Behavior
	LogLevel     string
	LogMinLevel  string // dispatch threshold forwarded over MQTT, per spec §4.11
	ConnectRetry time.Duration
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		MqttClientID: "irhub-agent",
		AgentDataDir: "/var/lib/irhub-agent",
		ReadableName: "IR Agent",
		SwVersion:    "dev",
		CanSend:      true,
		CanLearn:     true,
		ReceiverBin:  "ir-ctl-recv",
		SenderBin:    "ir-ctl-send",
		ScratchDir:   os.TempDir(),
		LogLevel:     "info",
		LogMinLevel:  "info",
		ConnectRetry: 5 * time.Second,
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	cfg.MqttBrokerURL = os.Getenv("IRHUB_AGENT_MQTT_URL")
	if cfg.MqttBrokerURL == "" {
		return nil, errors.New("IRHUB_AGENT_MQTT_URL is required")
	}
	cfg.MqttUsername = os.Getenv("IRHUB_AGENT_MQTT_USERNAME")
	cfg.MqttPassword = os.Getenv("IRHUB_AGENT_MQTT_PASSWORD")
	if v := os.Getenv("IRHUB_AGENT_MQTT_CLIENT_ID"); v != "" {
		cfg.MqttClientID = v
	}

	if v := os.Getenv("IRHUB_AGENT_DATA_DIR"); v != "" {
		cfg.AgentDataDir = v
	}
	if v := os.Getenv("IRHUB_AGENT_NAME"); v != "" {
		cfg.ReadableName = v
	}
	if v := os.Getenv("IRHUB_AGENT_SW_VERSION"); v != "" {
		cfg.SwVersion = v
	}
	cfg.CanSend = parseBool("IRHUB_AGENT_CAN_SEND", cfg.CanSend)
	cfg.CanLearn = parseBool("IRHUB_AGENT_CAN_LEARN", cfg.CanLearn)

	if v := os.Getenv("IRHUB_AGENT_RECEIVER_BIN"); v != "" {
		cfg.ReceiverBin = v
	}
	if v := os.Getenv("IRHUB_AGENT_SENDER_BIN"); v != "" {
		cfg.SenderBin = v
	}
	cfg.ReceiverDevice = os.Getenv("IRHUB_AGENT_RECEIVER_DEVICE")
	cfg.SenderDevice = os.Getenv("IRHUB_AGENT_SENDER_DEVICE")
	if v := os.Getenv("IRHUB_AGENT_EMITTERS"); v != "" {
		cfg.Emitters = splitCSV(v)
	}
	if v := os.Getenv("IRHUB_AGENT_SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}

	if v := os.Getenv("IRHUB_AGENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("IRHUB_AGENT_LOG_MIN_LEVEL"); v != "" {
		cfg.LogMinLevel = v
	}
	if v := os.Getenv("IRHUB_AGENT_CONNECT_RETRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ConnectRetry = d
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.MqttBrokerURL == "" {
		return errors.New("mqtt broker url is required")
	}
	if c.ReadableName == "" {
		return errors.New("readable name is required")
	}
	return nil
}

func parseBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
