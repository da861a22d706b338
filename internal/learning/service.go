package learning

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/irhub/irhub/internal/agentapi"
	"github.com/irhub/irhub/internal/apierr"
	"github.com/irhub/irhub/internal/broadcast"
	"github.com/irhub/irhub/internal/catalog"
)

// AgentLookup is the subset of internal/registry.Registry the learning
// service drives: binding a remote to an agent at session start, and
// reaching that agent again for every subsequent capture.
type AgentLookup interface {
	ResolveAgentForRemote(ctx context.Context, remote catalog.Remote) (string, agentapi.Agent, error)
	Live(agentID string) (agentapi.Agent, bool)
}

// Service is the global singleton learning session, guarded by one mutex
// per spec §4.12/§5.
type Service struct {
	store       *catalog.Store
	agents      AgentLookup
	broadcaster *broadcast.Broadcaster
	log         zerolog.Logger

	mu       sync.Mutex
	session  *Session
	settings Settings
}

func New(store *catalog.Store, agents AgentLookup, broadcaster *broadcast.Broadcaster, log zerolog.Logger) *Service {
	return &Service{
		store:       store,
		agents:      agents,
		broadcaster: broadcaster,
		log:         log.With().Str("component", "learning").Logger(),
		settings:    DefaultSettings,
	}
}

// Status returns the current broadcastable status, active or not.
func (s *Service) Status() StatusPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return disabledStatus()
	}
	return s.session.status()
}

// ApplyLearningSettings atomically updates the aggregation tunables used by
// subsequent captures.
func (s *Service) ApplyLearningSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

func (s *Service) settingsSnapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Start begins a learning session on remoteID. Fails with
// apierr.SessionAlreadyRunning if one is already active.
func (s *Service) Start(ctx context.Context, remoteID string, extend bool) error {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return apierr.SessionAlreadyRunning
	}
	// Claim the slot immediately so a concurrent Start sees it taken while
	// we do the (I/O-bound) setup below.
	s.session = &Session{RemoteID: remoteID, StartedAt: time.Now()}
	s.mu.Unlock()

	remote, err := s.store.GetRemote(ctx, nil, remoteID)
	if err != nil {
		s.clearSession()
		return apierr.NotFound.WithMessage("remote not found")
	}

	agentID, _, err := s.agents.ResolveAgentForRemote(ctx, remote)
	if err != nil {
		s.clearSession()
		return err
	}

	if !extend {
		if err := s.store.ClearButtons(ctx, nil, remoteID); err != nil {
			s.clearSession()
			return fmt.Errorf("learning: clear buttons: %w", err)
		}
	}

	nextIndex, err := s.computeNextIndex(ctx, remoteID, extend)
	if err != nil {
		s.clearSession()
		return err
	}

	s.mu.Lock()
	s.session.RemoteName = remote.Name
	s.session.AgentID = agentID
	s.session.Extend = extend
	s.session.NextButtonIndex = nextIndex
	s.session.appendLog(LogEntry{Timestamp: time.Now(), Level: "info", Message: "learning session started"})
	status := s.session.status()
	s.mu.Unlock()

	s.broadcaster.Broadcast(ctx, status)
	return nil
}

// Stop sends LearnStop to the session's agent (when a capture had sent
// LearnStart), clears the active session and publishes
// {learn_enabled:false}.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	var agentID, remoteID string
	started := false
	if s.session != nil {
		agentID, remoteID, started = s.session.AgentID, s.session.RemoteID, s.session.learnStarted
	}
	s.mu.Unlock()
	if started {
		if agent, ok := s.agents.Live(agentID); ok {
			if err := agent.LearnStop(ctx, remoteID); err != nil {
				s.log.Warn().Err(err).Msg("learn stop failed")
			}
		}
	}
	s.clearSession()
	s.broadcaster.Broadcast(ctx, disabledStatus())
}

func (s *Service) clearSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// computeNextIndex scans existing button names for ^BTN_(\d{4})$ and
// returns max+1 when extending, or 1 for a fresh session.
func (s *Service) computeNextIndex(ctx context.Context, remoteID string, extend bool) (int, error) {
	if !extend {
		return 1, nil
	}
	names, err := s.store.ListButtonNames(ctx, nil, remoteID)
	if err != nil {
		return 0, fmt.Errorf("learning: list button names: %w", err)
	}
	max := 0
	for _, name := range names {
		m := autoNamePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// withSession runs fn with the active session, failing with apierr.NotFound
// if none is active or it doesn't match remoteID.
func (s *Service) withSession(remoteID string, fn func(sess *Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.RemoteID != remoteID {
		return apierr.NotFound.WithMessage("no active learning session for this remote")
	}
	fn(s.session)
	return nil
}

func (s *Service) appendLogAndBroadcast(ctx context.Context, remoteID string, entry LogEntry) {
	s.mu.Lock()
	if s.session == nil || s.session.RemoteID != remoteID {
		s.mu.Unlock()
		return
	}
	s.session.appendLog(entry)
	status := s.session.status()
	s.mu.Unlock()
	s.broadcaster.Broadcast(ctx, status)
}
