package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// ProcessEngine shells out to two external binaries, the way
// internal/agent/repo.go and internal/colors/git.go invoke git: an explicit
// argv, stdout and stderr captured into separate buffers, and scoped
// scratch-file cleanup.
type ProcessEngine struct {
	ReceiverBin    string
	SenderBin      string
	ReceiverDevice string
	SenderDevice   string
	ScratchDir     string
	Log            zerolog.Logger
}

// NewProcessEngine builds a ProcessEngine with the given binaries and
// device paths; receiverBin/senderBin default to "ir-ctl-recv"/"ir-ctl-send"
// when empty. Receive and send commonly run against different devices (a
// dedicated IR receiver vs. an emitter), so the two are tracked separately.
func NewProcessEngine(receiverBin, senderBin, receiverDevice, senderDevice, scratchDir string, log zerolog.Logger) *ProcessEngine {
	if receiverBin == "" {
		receiverBin = "ir-ctl-recv"
	}
	if senderBin == "" {
		senderBin = "ir-ctl-send"
	}
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &ProcessEngine{
		ReceiverBin:    receiverBin,
		SenderBin:      senderBin,
		ReceiverDevice: receiverDevice,
		SenderDevice:   senderDevice,
		ScratchDir:     scratchDir,
		Log:            log.With().Str("component", "engine").Logger(),
	}
}

func (e *ProcessEngine) ReceiveOne(ctx context.Context, timeoutMs int, wideband bool) (ReceiveResult, error) {
	scratch, err := os.CreateTemp(e.ScratchDir, "irhub-recv-*.txt")
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("engine: create scratch file: %w", err)
	}
	scratchPath := scratch.Name()
	scratch.Close()
	defer os.Remove(scratchPath)

	args := []string{"--device", e.ReceiverDevice, "--output", scratchPath, "--timeout-ms", strconv.Itoa(timeoutMs)}
	if wideband {
		args = append(args, "--wideband")
	}

	timeout := time.Duration(timeoutMs)*time.Millisecond + 2*time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.ReceiverBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() != nil {
		e.Log.Warn().Int("timeout_ms", timeoutMs).Msg("receive timed out")
		return ReceiveResult{}, ErrTimeout
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return ReceiveResult{}, &EngineFailure{Stderr: stderr.String()}
		}
		return ReceiveResult{}, fmt.Errorf("engine: run receiver: %w", runErr)
	}

	raw, err := os.ReadFile(scratchPath)
	if err != nil {
		return ReceiveResult{}, fmt.Errorf("engine: read scratch file: %w", err)
	}
	if len(raw) == 0 {
		return ReceiveResult{}, ErrTimeout
	}

	return ReceiveResult{
		Raw:    string(raw),
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}, nil
}

func (e *ProcessEngine) SendFiles(ctx context.Context, paths []string, gapUs, carrierHz, dutyCycle *int, emitters []string) (SendResult, error) {
	args := []string{"--device", e.SenderDevice}
	if gapUs != nil {
		args = append(args, "--gap", strconv.Itoa(*gapUs))
	}
	if carrierHz != nil {
		args = append(args, "--carrier", strconv.Itoa(*carrierHz))
	}
	if dutyCycle != nil {
		args = append(args, "--duty-cycle", strconv.Itoa(*dutyCycle))
	}
	for _, em := range emitters {
		args = append(args, "--emitters", em)
	}
	for _, p := range paths {
		args = append(args, "--send="+p)
	}

	cmd := exec.CommandContext(ctx, e.SenderBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return SendResult{}, &EngineFailure{Stderr: stderr.String()}
		}
		return SendResult{}, fmt.Errorf("engine: run sender: %w", err)
	}

	return SendResult{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
