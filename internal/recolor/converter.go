// Package recolor wraps the external OpenVoice tone-color converter behind
// the core.VoiceColorConverter interface.
package recolor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/flowsmartly/voice-worker/internal/config"
	"github.com/flowsmartly/voice-worker/internal/core"
	"github.com/flowsmartly/voice-worker/internal/runner"
)

// ModelTagSuffix is appended to the result model tag when the enhancement
// was applied.
const ModelTagSuffix = "+openvoice"

// Static errors.
var (
	ErrSourcePathEmpty    = errors.New("source audio path cannot be empty")
	ErrReferenceEmpty     = errors.New("reference audio path cannot be empty")
	ErrOutputPathEmpty    = errors.New("output path cannot be empty")
	ErrNoOutputProduced   = errors.New("converter produced no output file")
	ErrConverterUnusable  = errors.New("tone converter not usable")
	ErrCheckpointsMissing = errors.New("converter checkpoints not accessible")
)

// Converter invokes the OpenVoice converter binary. Its lifecycle is
// independent from the synthesis engine: the same lazy probe, cached only
// on success, retried after failure.
type Converter struct {
	cfg    config.VoiceColorConfig
	log    *logger.Logger
	runner runner.CommandRunner

	lookPath func(name string) (string, error)
	stat     func(name string) (os.FileInfo, error)

	mu         sync.Mutex
	loaded     bool
	binaryPath string
}

// New creates a Converter backed by os/exec.
func New(cfg config.VoiceColorConfig, log *logger.Logger) *Converter {
	execRunner := &runner.ExecRunner{}

	return &Converter{
		cfg:      cfg,
		log:      log,
		runner:   execRunner,
		lookPath: execRunner.LookPath,
		stat:     os.Stat,
	}
}

// NewWithRunner creates a Converter with injected process dependencies, for
// tests.
func NewWithRunner(
	cfg config.VoiceColorConfig,
	log *logger.Logger,
	commandRunner runner.CommandRunner,
	lookPath func(name string) (string, error),
	stat func(name string) (os.FileInfo, error),
) *Converter {
	return &Converter{
		cfg:      cfg,
		log:      log,
		runner:   commandRunner,
		lookPath: lookPath,
		stat:     stat,
	}
}

// EnsureLoaded verifies the converter is usable.
func (c *Converter) EnsureLoaded(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ensureLoadedLocked()
}

func (c *Converter) ensureLoadedLocked() error {
	if c.loaded {
		return nil
	}

	binaryPath, err := c.lookPath(c.cfg.BinaryPath)
	if err != nil {
		return fmt.Errorf(
			"%w: %w: '%s': %w",
			core.ErrEngineUnavailable, ErrConverterUnusable, c.cfg.BinaryPath, err,
		)
	}

	if c.cfg.CheckpointDir != "" {
		_, statErr := c.stat(c.cfg.CheckpointDir)
		if statErr != nil {
			return fmt.Errorf(
				"%w: %w: '%s': %w",
				core.ErrEngineUnavailable, ErrCheckpointsMissing, c.cfg.CheckpointDir, statErr,
			)
		}
	}

	c.binaryPath = binaryPath
	c.loaded = true

	c.log.Info("Tone converter ready: %s", binaryPath)

	return nil
}

// Recolor extracts the voice signature of the reference sample and
// transforms the source audio to match it, writing a new file. Callers
// treat failures here as recoverable.
func (c *Converter) Recolor(ctx context.Context, sourcePath, referencePath, outputPath string) (string, error) {
	validationErr := validateRecolorInputs(sourcePath, referencePath, outputPath)
	if validationErr != nil {
		return "", validationErr
	}

	c.mu.Lock()

	loadErr := c.ensureLoadedLocked()
	binaryPath := c.binaryPath

	c.mu.Unlock()

	if loadErr != nil {
		return "", loadErr
	}

	if c.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	args := []string{
		"--source", sourcePath,
		"--reference", referencePath,
		"--output", outputPath,
	}
	if c.cfg.CheckpointDir != "" {
		args = append(args, "--checkpoints", c.cfg.CheckpointDir)
	}

	result, runErr := c.runner.Run(ctx, binaryPath, args...)
	if runErr != nil {
		return "", fmt.Errorf(
			"%w: tone conversion failed (exit=%d): %w - output: %s",
			core.ErrEngineUnavailable, result.ExitCode, runErr, result.Stderr,
		)
	}

	_, statErr := c.stat(outputPath)
	if statErr != nil {
		return "", fmt.Errorf(
			"%w: %w: %w", core.ErrEngineUnavailable, ErrNoOutputProduced, statErr,
		)
	}

	return outputPath, nil
}

func validateRecolorInputs(sourcePath, referencePath, outputPath string) error {
	if sourcePath == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrSourcePathEmpty)
	}

	if referencePath == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrReferenceEmpty)
	}

	if outputPath == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, ErrOutputPathEmpty)
	}

	return nil
}
