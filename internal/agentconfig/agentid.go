package agentconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const agentIDFileName = "agent_id"

// LoadOrCreateAgentID reads the persisted agent id under dataDir, generating
// and writing a fresh one on first run. Mirrors the original agent's
// agent_id_store.py: a UUID persisted once under <data_dir>/agent/agent_id
// and reused across restarts, so an agent keeps its pairing/catalog identity
// across reboots instead of re-registering as a new agent every time.
func LoadOrCreateAgentID(dataDir string) (string, error) {
	dir := filepath.Join(dataDir, "agent")
	path := filepath.Join(dir, agentIDFileName)

	if raw, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(raw))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("agentconfig: read agent id: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("agentconfig: create agent dir: %w", err)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0o600); err != nil {
		return "", fmt.Errorf("agentconfig: write agent id: %w", err)
	}
	return id, nil
}
