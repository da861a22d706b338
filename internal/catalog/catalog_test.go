package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/irhub/irhub/internal/cipher"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateRemoteIsIdempotentOnName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1, err := s.CreateRemote(ctx, nil, "Living Room TV", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateRemote: %v", err)
	}
	r2, err := s.CreateRemote(ctx, nil, "Living Room TV", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateRemote (again): %v", err)
	}
	if r1.ID != r2.ID {
		t.Fatalf("CreateRemote returned different ids for the same name: %s vs %s", r1.ID, r2.ID)
	}
}

func TestCreateRemoteRejectsEmptyName(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateRemote(context.Background(), nil, "   ", nil, nil, nil); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("CreateRemote(\"   \") err = %v, want ErrEmptyName", err)
	}
}

func TestButtonLifecycleAndCascadeDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.CreateRemote(ctx, nil, "Soundbar", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateRemote: %v", err)
	}
	b, err := s.CreateButton(ctx, nil, r.ID, "Volume Up", nil)
	if err != nil {
		t.Fatalf("CreateButton: %v", err)
	}
	if b.HasPress {
		t.Fatalf("new button HasPress = true, want false")
	}

	if err := s.UpsertPress(ctx, nil, UpsertPressInput{
		ButtonID: b.ID, PressInitial: "900 -450 900", SampleCount: 3, Quality: 1.0,
	}); err != nil {
		t.Fatalf("UpsertPress: %v", err)
	}

	got, err := s.GetButton(ctx, nil, b.ID)
	if err != nil {
		t.Fatalf("GetButton: %v", err)
	}
	if !got.HasPress {
		t.Fatalf("GetButton HasPress = false after UpsertPress")
	}

	if err := s.ClearButtons(ctx, nil, r.ID); err != nil {
		t.Fatalf("ClearButtons: %v", err)
	}
	if _, err := s.GetButton(ctx, nil, b.ID); !errors.Is(err, ErrUnknownButton) {
		t.Fatalf("GetButton after ClearButtons err = %v, want ErrUnknownButton", err)
	}
}

func TestUpdateHoldRequiresPriorPress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, _ := s.CreateRemote(ctx, nil, "AC", nil, nil, nil)
	b, _ := s.CreateButton(ctx, nil, r.ID, "Power", nil)

	err := s.UpdateHold(ctx, nil, UpdateHoldInput{
		ButtonID: b.ID, HoldInitial: "900 -450", HoldRepeat: "560 -560", HoldGapUs: 45000, SampleCount: 4, Quality: 0.9,
	})
	if !errors.Is(err, ErrPressMissing) {
		t.Fatalf("UpdateHold without press err = %v, want ErrPressMissing", err)
	}

	if err := s.UpsertPress(ctx, nil, UpsertPressInput{ButtonID: b.ID, PressInitial: "900 -450", SampleCount: 3, Quality: 1}); err != nil {
		t.Fatalf("UpsertPress: %v", err)
	}
	if err := s.UpdateHold(ctx, nil, UpdateHoldInput{
		ButtonID: b.ID, HoldInitial: "900 -450", HoldRepeat: "560 -560", HoldGapUs: 45000, SampleCount: 4, Quality: 0.9,
	}); err != nil {
		t.Fatalf("UpdateHold after press: %v", err)
	}
}

func TestAgentUpsertPreservesIconWhenNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	icon := "living-room.png"

	_, err := s.UpsertAgent(ctx, nil, UpsertAgentInput{
		AgentID: "agent-1", Name: "Agent One", Icon: &icon, Transport: "local", Status: "online",
	})
	if err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}

	got, err := s.UpsertAgent(ctx, nil, UpsertAgentInput{
		AgentID: "agent-1", Name: "Agent One Renamed", Transport: "local", Status: "online",
	})
	if err != nil {
		t.Fatalf("UpsertAgent (again): %v", err)
	}
	if got.Icon == nil || *got.Icon != icon {
		t.Fatalf("Icon = %v, want preserved %q", got.Icon, icon)
	}
	if got.Name != "Agent One Renamed" {
		t.Fatalf("Name = %q, want updated", got.Name)
	}
}

func TestSetPendingStateForcesNullSessionWhenNotPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	session := "sess-1"

	_, err := s.UpsertAgent(ctx, nil, UpsertAgentInput{AgentID: "a1", Transport: "mqtt", Status: "offline"})
	if err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}
	if err := s.SetPendingState(ctx, nil, "a1", true, &session); err != nil {
		t.Fatalf("SetPendingState: %v", err)
	}
	got, _ := s.GetAgent(ctx, nil, "a1")
	if !got.Pending || got.PairingSessionID == nil || *got.PairingSessionID != session {
		t.Fatalf("agent after pending=true: %+v", got)
	}

	if err := s.SetPendingState(ctx, nil, "a1", false, &session); err != nil {
		t.Fatalf("SetPendingState: %v", err)
	}
	got, _ = s.GetAgent(ctx, nil, "a1")
	if got.Pending || got.PairingSessionID != nil {
		t.Fatalf("agent after pending=false: %+v", got)
	}
}

func TestDeleteAgentReturnsUnknownForMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.DeleteAgent(context.Background(), nil, "nope"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("DeleteAgent err = %v, want ErrUnknownAgent", err)
	}
}

func TestRuntimeSettingsRequiresMasterKeyWhenSecretStored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	aead, err := cipher.New("test-master-key")
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}

	pw := "hunter2"
	if err := s.UpdateUISettings(ctx, nil, aead, UISettingsUpdate{MqttPassword: &pw}); err != nil {
		t.Fatalf("UpdateUISettings: %v", err)
	}

	if _, err := s.GetRuntimeSettings(ctx, nil, nil); !errors.Is(err, ErrMasterKeyMissing) {
		t.Fatalf("GetRuntimeSettings without key err = %v, want ErrMasterKeyMissing", err)
	}

	got, err := s.GetRuntimeSettings(ctx, nil, aead)
	if err != nil {
		t.Fatalf("GetRuntimeSettings: %v", err)
	}
	if got.MqttPassword != pw {
		t.Fatalf("MqttPassword = %q, want %q", got.MqttPassword, pw)
	}
}
