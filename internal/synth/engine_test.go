// Package synth_test tests the F5 synthesis engine adapter.
package synth_test

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmartly/voice-worker/internal/config"
	"github.com/flowsmartly/voice-worker/internal/core"
	"github.com/flowsmartly/voice-worker/internal/runner"
	"github.com/flowsmartly/voice-worker/internal/synth"
)

var (
	errBinaryMissing = errors.New("binary not on PATH")
	errEngineCrashed = errors.New("engine crashed")
)

// fakeRunner records invocations and delegates to a configurable function.
type fakeRunner struct {
	calls [][]string
	run   func(ctx context.Context, name string, args ...string) (runner.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))

	return f.run(ctx, name, args...)
}

// writeTestWAV writes a minimal PCM WAV file with the given sample rate.
func writeTestWAV(t *testing.T, path string, sampleRate uint32) {
	t.Helper()

	data := make([]byte, 0, 44)
	data = append(data, []byte("RIFF")...)
	data = binary.LittleEndian.AppendUint32(data, 36)
	data = append(data, []byte("WAVE")...)
	data = append(data, []byte("fmt ")...)
	data = binary.LittleEndian.AppendUint32(data, 16)
	data = binary.LittleEndian.AppendUint16(data, 1) // PCM
	data = binary.LittleEndian.AppendUint16(data, 1) // mono
	data = binary.LittleEndian.AppendUint32(data, sampleRate)
	data = binary.LittleEndian.AppendUint32(data, sampleRate*2)
	data = binary.LittleEndian.AppendUint16(data, 2)
	data = binary.LittleEndian.AppendUint16(data, 16)
	data = append(data, []byte("data")...)
	data = binary.LittleEndian.AppendUint32(data, 0)

	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "synth-test.log")
	require.NoError(t, err)

	return log
}

func newTestEngine(
	t *testing.T,
	cfg config.SynthesisConfig,
	commandRunner runner.CommandRunner,
	lookPath func(string) (string, error),
) *synth.Engine {
	t.Helper()

	return synth.NewWithRunner(cfg, testLogger(t), commandRunner, lookPath, os.Stat)
}

func TestSynthesizeDefaultVoice(t *testing.T) {
	t.Parallel()

	outputPath := filepath.Join(t.TempDir(), "f5_output.wav")
	fake := &fakeRunner{
		run: func(_ context.Context, _ string, _ ...string) (runner.Result, error) {
			writeTestWAV(t, outputPath, 24000)

			return runner.Result{}, nil
		},
	}

	cfg := config.SynthesisConfig{BinaryPath: "f5-tts", NFESteps: 32, TargetRMS: 0.1, CrossFadeDuration: 0.15}
	engine := newTestEngine(t, cfg, fake, func(name string) (string, error) {
		return "/usr/local/bin/" + name, nil
	})

	result, err := engine.Synthesize(context.Background(), core.SynthesisRequest{
		Text:       "Hello world",
		Language:   "en",
		OutputPath: outputPath,
	})
	require.NoError(t, err)
	assert.Equal(t, outputPath, result.AudioPath)
	assert.Equal(t, 24000, result.SampleRate)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, "/usr/local/bin/f5-tts", call[0])
	assert.Contains(t, call, "--gen-text")
	assert.Contains(t, call, "--nfe-steps")
	assert.NotContains(t, call, "--ref-audio")
}

func TestSynthesizeCloneModePassesReference(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outputPath := filepath.Join(dir, "f5_output.wav")
	referencePath := filepath.Join(dir, "reference.wav")
	fake := &fakeRunner{
		run: func(_ context.Context, _ string, _ ...string) (runner.Result, error) {
			writeTestWAV(t, outputPath, 44100)

			return runner.Result{}, nil
		},
	}

	engine := newTestEngine(t, config.SynthesisConfig{BinaryPath: "f5-tts"}, fake,
		func(name string) (string, error) { return name, nil })

	result, err := engine.Synthesize(context.Background(), core.SynthesisRequest{
		Text:               "Hi",
		Language:           "en",
		ReferenceAudioPath: referencePath,
		ReferenceText:      "reference transcript",
		OutputPath:         outputPath,
	})
	require.NoError(t, err)
	assert.Equal(t, 44100, result.SampleRate)

	call := fake.calls[0]
	assert.Contains(t, call, "--ref-audio")
	assert.Contains(t, call, referencePath)
	assert.Contains(t, call, "--ref-text")
}

func TestSynthesizeEmptyTextIsValidationError(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{
		run: func(_ context.Context, _ string, _ ...string) (runner.Result, error) {
			return runner.Result{}, nil
		},
	}
	engine := newTestEngine(t, config.SynthesisConfig{BinaryPath: "f5-tts"}, fake,
		func(name string) (string, error) { return name, nil })

	_, err := engine.Synthesize(context.Background(), core.SynthesisRequest{
		Text:       "",
		OutputPath: "/tmp/out.wav",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Empty(t, fake.calls)
}

func TestEnsureLoadedRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	available := false
	lookPath := func(name string) (string, error) {
		if !available {
			return "", errBinaryMissing
		}

		return name, nil
	}

	fake := &fakeRunner{
		run: func(_ context.Context, _ string, _ ...string) (runner.Result, error) {
			return runner.Result{}, nil
		},
	}
	engine := newTestEngine(t, config.SynthesisConfig{BinaryPath: "f5-tts"}, fake, lookPath)

	err := engine.EnsureLoaded(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineUnavailable)

	// The failed probe is retried once the binary becomes resolvable.
	available = true
	require.NoError(t, engine.EnsureLoaded(context.Background()))

	// A loaded engine stays loaded even if the PATH degrades afterwards.
	available = false
	require.NoError(t, engine.EnsureLoaded(context.Background()))
}

func TestSynthesizeEngineFailureIsEngineUnavailable(t *testing.T) {
	t.Parallel()

	fake := &fakeRunner{
		run: func(_ context.Context, _ string, _ ...string) (runner.Result, error) {
			return runner.Result{ExitCode: 1, Stderr: "CUDA out of memory"}, errEngineCrashed
		},
	}
	engine := newTestEngine(t, config.SynthesisConfig{BinaryPath: "f5-tts"}, fake,
		func(name string) (string, error) { return name, nil })

	_, err := engine.Synthesize(context.Background(), core.SynthesisRequest{
		Text:       "Hello",
		Language:   "en",
		OutputPath: filepath.Join(t.TempDir(), "out.wav"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEngineUnavailable)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestReadWAVSampleRateRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o600))

	_, err := synth.ReadWAVSampleRate(path)
	require.Error(t, err)
}
