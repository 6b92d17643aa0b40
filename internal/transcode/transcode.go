// Package transcode converts synthesized WAV audio to the requested output
// container using ffmpeg.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/hajimehoshi/go-mp3"

	"github.com/flowsmartly/voice-worker/internal/config"
	"github.com/flowsmartly/voice-worker/internal/core"
	"github.com/flowsmartly/voice-worker/internal/runner"
)

const filePermissions = 0o600

// Static errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrEmptyOutput       = errors.New("encoder produced an empty file")
)

// VerifyFunc checks that an encoded artifact is decodable.
type VerifyFunc func(path string) error

// FFmpegTranscoder implements core.Transcoder. On any failure it returns
// the input path together with the error so the caller can publish the
// untranscoded WAV instead; callers must check whether the returned path's
// extension matches the requested format.
type FFmpegTranscoder struct {
	cfg    config.TranscodeConfig
	log    *logger.Logger
	runner runner.CommandRunner
	verify VerifyFunc
}

// New creates an FFmpegTranscoder backed by os/exec.
func New(cfg config.TranscodeConfig, log *logger.Logger) *FFmpegTranscoder {
	return NewWithRunner(cfg, log, &runner.ExecRunner{}, nil)
}

// NewWithRunner creates an FFmpegTranscoder with an injected command runner
// and, optionally, an injected verification step; nil selects the mp3
// decode check.
func NewWithRunner(
	cfg config.TranscodeConfig,
	log *logger.Logger,
	commandRunner runner.CommandRunner,
	verify VerifyFunc,
) *FFmpegTranscoder {
	if verify == nil {
		verify = VerifyMP3
	}

	return &FFmpegTranscoder{
		cfg:    cfg,
		log:    log,
		runner: commandRunner,
		verify: verify,
	}
}

// Transcode converts inputPath to the requested format at outputPath.
func (t *FFmpegTranscoder) Transcode(
	ctx context.Context,
	inputPath, outputPath, format string,
) (string, error) {
	switch format {
	case core.FormatWAV:
		err := copyFile(inputPath, outputPath)
		if err != nil {
			return inputPath, fmt.Errorf("wav pass-through copy failed: %w", err)
		}

		return outputPath, nil
	case core.FormatMP3:
		err := t.encodeMP3(ctx, inputPath, outputPath)
		if err != nil {
			return inputPath, err
		}

		return outputPath, nil
	default:
		return inputPath, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// encodeMP3 runs ffmpeg with the libmp3lame VBR settings and verifies the
// result actually decodes before declaring success.
func (t *FFmpegTranscoder) encodeMP3(ctx context.Context, inputPath, outputPath string) error {
	if t.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	args := []string{
		"-y",
		"-i", inputPath,
		"-codec:a", "libmp3lame",
		"-qscale:a", strconv.Itoa(t.cfg.MP3Quality),
		outputPath,
	}

	result, runErr := t.runner.Run(ctx, t.cfg.FFmpegPath, args...)
	if runErr != nil {
		return fmt.Errorf(
			"ffmpeg mp3 encode failed (exit=%d): %w - output: %s",
			result.ExitCode, runErr, result.Stderr,
		)
	}

	verifyErr := t.verify(outputPath)
	if verifyErr != nil {
		return fmt.Errorf("mp3 verification failed for '%s': %w", outputPath, verifyErr)
	}

	t.log.Info("Transcoded %s -> %s", inputPath, outputPath)

	return nil
}

// VerifyMP3 decodes the first frames of the encoded file. ffmpeg exiting
// zero does not guarantee a playable artifact when the input was damaged.
func VerifyMP3(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		return fmt.Errorf("failed to initialize mp3 decoder: %w", err)
	}

	if decoder.Length() == 0 {
		return ErrEmptyOutput
	}

	return nil
}

func copyFile(sourcePath, destinationPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer source.Close()

	destination, err := os.OpenFile(
		destinationPath,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC,
		filePermissions,
	)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	_, copyErr := io.Copy(destination, source)
	closeErr := destination.Close()

	if copyErr != nil {
		return fmt.Errorf("failed to copy audio data: %w", copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close destination file: %w", closeErr)
	}

	return nil
}
