// Package synth wraps the external F5 speech synthesis engine behind the
// core.SpeechSynthesizer interface.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/flowsmartly/voice-worker/internal/config"
	"github.com/flowsmartly/voice-worker/internal/core"
	"github.com/flowsmartly/voice-worker/internal/runner"
)

// ModelTag identifies the synthesis engine in job results.
const ModelTag = "f5-tts"

// Static errors.
var (
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
	ErrNoAudioProduced = errors.New("engine produced no audio file")
)

// Engine invokes the f5-tts binary. The engine probe runs lazily on first
// use: a successful probe is cached for the process lifetime, a failed one
// is retried on the next call so a transient startup failure does not
// permanently disable the worker.
type Engine struct {
	cfg    config.SynthesisConfig
	log    *logger.Logger
	runner runner.CommandRunner

	lookPath func(name string) (string, error)
	stat     func(name string) (os.FileInfo, error)

	mu         sync.Mutex
	loaded     bool
	binaryPath string
}

// New creates an Engine backed by os/exec.
func New(cfg config.SynthesisConfig, log *logger.Logger) *Engine {
	execRunner := &runner.ExecRunner{}

	return &Engine{
		cfg:      cfg,
		log:      log,
		runner:   execRunner,
		lookPath: execRunner.LookPath,
		stat:     os.Stat,
	}
}

// NewWithRunner creates an Engine with injected process dependencies, for
// tests.
func NewWithRunner(
	cfg config.SynthesisConfig,
	log *logger.Logger,
	commandRunner runner.CommandRunner,
	lookPath func(name string) (string, error),
	stat func(name string) (os.FileInfo, error),
) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      log,
		runner:   commandRunner,
		lookPath: lookPath,
		stat:     stat,
	}
}

// EnsureLoaded verifies the engine is usable. Concurrent first-calls
// serialize on the engine mutex so only one probe runs at a time.
func (e *Engine) EnsureLoaded(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ensureLoadedLocked()
}

func (e *Engine) ensureLoadedLocked() error {
	if e.loaded {
		return nil
	}

	binaryPath, err := e.lookPath(e.cfg.BinaryPath)
	if err != nil {
		return fmt.Errorf(
			"%w: synthesis binary '%s' not found: %w",
			core.ErrEngineUnavailable, e.cfg.BinaryPath, err,
		)
	}

	if e.cfg.CheckpointDir != "" {
		_, statErr := e.stat(e.cfg.CheckpointDir)
		if statErr != nil {
			return fmt.Errorf(
				"%w: synthesis checkpoint dir '%s' not accessible: %w",
				core.ErrEngineUnavailable, e.cfg.CheckpointDir, statErr,
			)
		}
	}

	e.binaryPath = binaryPath
	e.loaded = true

	e.log.Info("Synthesis engine ready: %s", binaryPath)

	return nil
}

// Synthesize generates speech for the request. When both a reference audio
// path and its transcript are present the engine runs in voice-cloning
// mode; otherwise it uses its default voice.
func (e *Engine) Synthesize(ctx context.Context, req core.SynthesisRequest) (core.SynthesisResult, error) {
	if req.Text == "" {
		return core.SynthesisResult{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrTextEmpty)
	}

	if req.OutputPath == "" {
		return core.SynthesisResult{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrOutputPathEmpty)
	}

	e.mu.Lock()

	loadErr := e.ensureLoadedLocked()
	binaryPath := e.binaryPath

	e.mu.Unlock()

	if loadErr != nil {
		return core.SynthesisResult{}, loadErr
	}

	if e.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	args := e.buildArgs(req)

	result, runErr := e.runner.Run(ctx, binaryPath, args...)
	if runErr != nil {
		return core.SynthesisResult{}, fmt.Errorf(
			"%w: synthesis failed (exit=%d): %w - output: %s",
			core.ErrEngineUnavailable, result.ExitCode, runErr, result.Stderr,
		)
	}

	_, statErr := e.stat(req.OutputPath)
	if statErr != nil {
		return core.SynthesisResult{}, fmt.Errorf(
			"%w: %w: %w", core.ErrEngineUnavailable, ErrNoAudioProduced, statErr,
		)
	}

	sampleRate, rateErr := ReadWAVSampleRate(req.OutputPath)
	if rateErr != nil {
		return core.SynthesisResult{}, fmt.Errorf(
			"%w: engine wrote an unreadable WAV: %w", core.ErrEngineUnavailable, rateErr,
		)
	}

	return core.SynthesisResult{
		AudioPath:  req.OutputPath,
		SampleRate: sampleRate,
	}, nil
}

// buildArgs assembles the engine invocation. The numeric knobs are fixed
// configuration, not derived values.
func (e *Engine) buildArgs(req core.SynthesisRequest) []string {
	args := []string{
		"--gen-text", req.Text,
		"--language", req.Language,
		"--output", req.OutputPath,
		"--nfe-steps", strconv.Itoa(e.cfg.NFESteps),
		"--target-rms", fmt.Sprintf("%.2f", e.cfg.TargetRMS),
		"--cross-fade", fmt.Sprintf("%.2f", e.cfg.CrossFadeDuration),
	}

	if req.ReferenceAudioPath != "" && req.ReferenceText != "" {
		args = append(args,
			"--ref-audio", req.ReferenceAudioPath,
			"--ref-text", req.ReferenceText,
		)
	}

	return args
}
