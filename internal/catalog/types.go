package catalog

import "time"

// Remote is a logical IR source (spec §3).
type Remote struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Icon            *string   `json:"icon,omitempty"`
	CarrierHz       *int      `json:"carrier_hz,omitempty"`
	DutyCycle       *int      `json:"duty_cycle,omitempty"`
	AssignedAgentID *string   `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Button is one IR signal slot on a Remote.
type Button struct {
	ID        string    `json:"id"`
	RemoteID  string    `json:"remote_id"`
	Name      string    `json:"name"`
	Icon      *string   `json:"icon,omitempty"`
	HasPress  bool      `json:"has_press"`
	HasHold   bool      `json:"has_hold"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ButtonSignals holds the learned pulse trains for one Button.
type ButtonSignals struct {
	ButtonID          string    `json:"button_id"`
	PressInitial      string    `json:"press_initial"`
	PressRepeat       *string   `json:"press_repeat,omitempty"`
	HoldInitial       *string   `json:"hold_initial,omitempty"`
	HoldRepeat        *string   `json:"hold_repeat,omitempty"`
	HoldGapUs         *int      `json:"hold_gap_us,omitempty"`
	QualityScorePress *float64  `json:"quality_score_press,omitempty"`
	QualityScoreHold  *float64  `json:"quality_score_hold,omitempty"`
	SampleCountPress  int       `json:"sample_count_press"`
	SampleCountHold   *int      `json:"sample_count_hold,omitempty"`
	Encoding          string    `json:"encoding"`
	Protocol          *string   `json:"protocol,omitempty"`
	Address           *string   `json:"address,omitempty"`
	Command           *string   `json:"command,omitempty"`
	Confidence        *float64  `json:"confidence,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Capture is one raw per-take recording, persisted only when debug is on.
type Capture struct {
	ID        int64     `json:"id"`
	ButtonID  string    `json:"button_id"`
	Mode      string    `json:"mode"`
	TakeIndex int       `json:"take_index"`
	Raw       string    `json:"raw"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a registered IR agent, local or MQTT-connected.
type Agent struct {
	AgentID          string     `json:"agent_id"`
	Name             string     `json:"name"`
	Icon             *string    `json:"icon,omitempty"`
	Transport        string     `json:"transport"` // "local" | "mqtt"
	Status           string     `json:"status"`    // "online" | "offline"
	CanSend          bool       `json:"can_send"`
	CanLearn         bool       `json:"can_learn"`
	SwVersion        string     `json:"sw_version"`
	AgentTopic       string     `json:"agent_topic"`
	ConfigurationURL *string    `json:"configuration_url,omitempty"`
	Pending          bool       `json:"pending"`
	PairingSessionID *string    `json:"pairing_session_id,omitempty"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RuntimeSettings is the decrypted view of the MQTT broker connection
// settings, per GetRuntimeSettings.
type RuntimeSettings struct {
	MqttHost     string
	MqttPort     int
	MqttUsername string
	MqttPassword string
	MqttInstance string
}

// UISettingsUpdate carries only the fields an operator supplied; nil fields
// are left untouched in storage.
type UISettingsUpdate struct {
	MqttHost                *string
	MqttPort                *int
	MqttUsername            *string
	MqttPassword            *string // empty string clears it, nil leaves it
	MqttInstance            *string
	HomeassistantEnabled    *bool
	PressTakesDefault       *int
	CaptureTimeoutMsDefault *int
	HoldIdleTimeoutMs       *int
	AggregateRoundToUs      *int
	AggregateMinMatchRatio  *float64
}
