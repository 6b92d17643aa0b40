// Package worker_test tests the NATS worker for the voice service.
package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmartly/voice-worker/internal/core"
	"github.com/flowsmartly/voice-worker/internal/worker"
)

const testSubject = "voice.jobs"

// mockJobRunner is a mock implementation of the JobRunner interface.
type mockJobRunner struct {
	result  core.JobResult
	lastReq core.JobRequest
}

func (m *mockJobRunner) RunJob(_ context.Context, req core.JobRequest) core.JobResult {
	m.lastReq = req

	result := m.result
	if result.JobID == "" {
		result.JobID = req.JobID
	}

	return result
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func startWorker(t *testing.T, runner core.JobRunner) *nats.Conn {
	t.Helper()

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	workerInstance, err := worker.NewNatsWorker(
		natsConnection, testSubject, runner, time.Minute, testLogger,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})

	go func() {
		defer close(done)

		runErr := workerInstance.Run(ctx)
		assert.NoError(t, runErr)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Let the subscription settle before tests publish.
	require.NoError(t, natsConnection.Flush())

	return natsConnection
}

func TestWorkerRespondsWithResult(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{
		result: core.JobResult{
			AudioURL: "https://storage.flowsmartly.dev/voice-audio/tts/job-1.mp3",
			Status:   core.StatusCompleted,
			Model:    "f5-tts",
			Language: "en",
			Format:   "mp3",
		},
	}
	natsConnection := startWorker(t, runner)

	payload, err := json.Marshal(core.JobRequest{JobID: "job-1", Text: "Hello world"})
	require.NoError(t, err)

	msg, err := natsConnection.Request(testSubject, payload, 5*time.Second)
	require.NoError(t, err)

	var result core.JobResult
	require.NoError(t, json.Unmarshal(msg.Data, &result))

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "Hello world", runner.lastReq.Text)
}

func TestWorkerAssignsJobIDWhenAbsent(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{result: core.JobResult{Status: core.StatusCompleted}}
	natsConnection := startWorker(t, runner)

	payload, err := json.Marshal(core.JobRequest{Text: "Hello"})
	require.NoError(t, err)

	msg, err := natsConnection.Request(testSubject, payload, 5*time.Second)
	require.NoError(t, err)

	var result core.JobResult
	require.NoError(t, json.Unmarshal(msg.Data, &result))

	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, runner.lastReq.JobID, result.JobID)
}

func TestWorkerRespondsWithErrorResultOnFailure(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{result: core.JobResult{Error: "speech synthesis failed"}}
	natsConnection := startWorker(t, runner)

	payload, err := json.Marshal(core.JobRequest{JobID: "job-2", Text: "Hello"})
	require.NoError(t, err)

	msg, err := natsConnection.Request(testSubject, payload, 5*time.Second)
	require.NoError(t, err)

	var result core.JobResult
	require.NoError(t, json.Unmarshal(msg.Data, &result))

	assert.Equal(t, "speech synthesis failed", result.Error)
	assert.Empty(t, result.Status)
}

func TestWorkerRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	runner := &mockJobRunner{result: core.JobResult{Status: core.StatusCompleted}}
	natsConnection := startWorker(t, runner)

	msg, err := natsConnection.Request(testSubject, []byte("{not json"), 5*time.Second)
	require.NoError(t, err)

	var result core.JobResult
	require.NoError(t, json.Unmarshal(msg.Data, &result))

	assert.Contains(t, result.Error, "invalid job payload")

	// The malformed payload never reaches the pipeline.
	assert.Empty(t, runner.lastReq.Text)
}
