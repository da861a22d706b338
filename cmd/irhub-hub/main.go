// Command irhub-hub runs the hub process: it owns the catalog database,
// dispatches commands to agents over MQTT (or an embedded local agent),
// and serves the JSON/WebSocket API in internal/hub. Grounded on the
// teacher's cmd/nixfleet-dashboard/main.go.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/broadcast"
	"github.com/irhub/irhub/internal/catalog"
	"github.com/irhub/irhub/internal/cipher"
	"github.com/irhub/irhub/internal/discovery"
	"github.com/irhub/irhub/internal/engine"
	"github.com/irhub/irhub/internal/hub"
	"github.com/irhub/irhub/internal/hubconfig"
	"github.com/irhub/irhub/internal/learning"
	"github.com/irhub/irhub/internal/logs"
	"github.com/irhub/irhub/internal/pairing"
	"github.com/irhub/irhub/internal/registry"
	"github.com/irhub/irhub/internal/rpc"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := hubconfig.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	var aead *cipher.AEAD
	if cfg.SettingsMasterKey != "" {
		aead, err = cipher.New(cfg.SettingsMasterKey)
		if err != nil {
			log.Fatal().Err(err).Msg("init settings cipher")
		}
	}

	store, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open catalog")
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(cfg.MqttBrokerURL).
		SetClientID(cfg.MqttClientID).
		SetUsername(cfg.MqttUsername).
		SetPassword(cfg.MqttPassword).
		SetAutoReconnect(true).
		SetCleanSession(false)
	mqttClient := mqtt.NewClient(mqttOpts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("connect to mqtt broker")
	}
	defer mqttClient.Disconnect(250)

	reg := registry.New(store)
	rpcClient := rpc.NewClient(mqttClient, cfg.HubID, log)
	if err := rpcClient.Start(); err != nil {
		log.Fatal().Err(err).Msg("start rpc client")
	}

	pairingMgr := pairing.NewHubManager(mqttClient, store, cfg.HubID, cfg.HubName, cfg.HubTopic, cfg.SwVersion, log)
	if err := pairingMgr.Start(); err != nil {
		log.Fatal().Err(err).Msg("start pairing manager")
	}

	logSink := logs.NewHubSink(mqttClient, reg, log)
	if err := logSink.Start(); err != nil {
		log.Fatal().Err(err).Msg("start log sink")
	}

	presence := discovery.New(mqttClient, store, reg, rpcClient, log)
	if err := presence.Start(); err != nil {
		log.Fatal().Err(err).Msg("start presence tracker")
	}

	broadcaster := broadcast.New(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		broadcaster.Run(groupCtx)
		return nil
	})

	learningSvc := learning.New(store, reg, broadcaster, log)

	if cfg.EmbedLocalAgent {
		eng := engine.NewProcessEngine(cfg.LocalReceiverBin, cfg.LocalSenderBin, cfg.LocalReceiverDevice, cfg.LocalSenderDevice, cfg.LocalScratchDir, log)
		local := &agentapi.LocalAgent{
			Engine:     eng,
			ScratchDir: cfg.LocalScratchDir,
			Emitters:   cfg.LocalEmitters,
			CanSend:    cfg.LocalAgentCanSend,
			CanLearn:   cfg.LocalAgentCanLearn,
		}
		if _, err := reg.Register(ctx, cfg.LocalAgentID, local, catalog.UpsertAgentInput{
			Name:      cfg.LocalAgentName,
			Transport: "local",
			CanSend:   cfg.LocalAgentCanSend,
			CanLearn:  cfg.LocalAgentCanLearn,
			SwVersion: cfg.SwVersion,
		}); err != nil {
			log.Fatal().Err(err).Msg("register embedded local agent")
		}
	}

	apiTokenHash := cfg.APITokenHash
	server := hub.New(store, reg, learningSvc, broadcaster, pairingMgr, logSink, aead, apiTokenHash, log)

	group.Go(func() error {
		if err := server.Run(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	group.Go(func() error {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
		case <-groupCtx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
		cancel()
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("hub exited with error")
	}
}
