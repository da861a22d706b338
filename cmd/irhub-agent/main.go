// Command irhub-agent runs one agent process: it pairs with a hub over
// MQTT, exposes the send/learn/debug RPC command set, and mirrors its
// runtime state on a retained topic. Grounded on the teacher's
// cmd/nixfleet-agent/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/agentconfig"
	"github.com/irhub/irhub/internal/agentstate"
	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/logs"
	"github.com/irhub/irhub/internal/pairing"
	"github.com/irhub/irhub/internal/protocol"
	"github.com/irhub/irhub/internal/rpc"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := agentconfig.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	agentID, err := agentconfig.LoadOrCreateAgentID(cfg.AgentDataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("load agent id")
	}
	cfg.AgentID = agentID
	log = log.With().Str("agent_id", agentID).Logger()

	eng := engine.NewProcessEngine(cfg.ReceiverBin, cfg.SenderBin, cfg.ReceiverDevice, cfg.SenderDevice, cfg.ScratchDir, log)
	local := &agentapi.LocalAgent{
		Engine:     eng,
		ScratchDir: cfg.ScratchDir,
		Emitters:   cfg.Emitters,
		CanSend:    cfg.CanSend,
		CanLearn:   cfg.CanLearn,
	}

	onlineTopic := protocol.OnlineTopic(agentID)
	mqttOpts := mqtt.NewClientOptions().
		AddBroker(cfg.MqttBrokerURL).
		SetClientID(cfg.MqttClientID).
		SetUsername(cfg.MqttUsername).
		SetPassword(cfg.MqttPassword).
		SetAutoReconnect(true).
		SetCleanSession(false).
		SetWill(onlineTopic, "", 1, true)
	mqttClient := mqtt.NewClient(mqttOpts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("connect to mqtt broker")
	}
	defer mqttClient.Disconnect(250)

	state := agentstate.New(mqttClient, agentID, func(debug bool) {
		log.Info().Bool("debug", debug).Msg("debug flag changed")
	}, log)
	local.DebugFlag = func() bool { return state.Snapshot().Debug }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := state.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start agent state store")
	}

	bound := state.Snapshot().PairingHubID != ""
	pairingMgr := pairing.NewAgentManager(mqttClient, pairing.AgentInfo{
		AgentUID:     agentID,
		ReadableName: cfg.ReadableName,
		BaseTopic:    fmt.Sprintf("ir/agents/%s", agentID),
		SwVersion:    cfg.SwVersion,
		CanSend:      cfg.CanSend,
		CanLearn:     cfg.CanLearn,
	}, state, log)
	if err := pairingMgr.Start(bound); err != nil {
		log.Fatal().Err(err).Msg("start pairing manager")
	}

	minLevel := protocol.LogLevel(cfg.LogMinLevel)
	reporter := logs.NewReporter(mqttClient, agentID, minLevel, nil, log)

	dispatch := newDispatcher(local, state, reporter)
	handler := rpc.NewHandler(mqttClient, agentID, func() string { return state.Snapshot().PairingHubID }, dispatch, log)
	if err := handler.Start(); err != nil {
		log.Fatal().Err(err).Msg("start rpc handler")
	}

	if token := mqttClient.Publish(onlineTopic, 1, true, "1"); token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Msg("publish online presence")
	}

	reporter.Log(logs.Event{Level: protocol.LogInfo, Category: "agent", Message: "agent started"})
	log.Info().Msg("agent running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if token := mqttClient.Publish(onlineTopic, 1, true, []byte{}); token.Wait() && token.Error() != nil {
		log.Warn().Err(token.Error()).Msg("clear online presence")
	}
}
