// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmartly/voice-worker/internal/core"
	"github.com/flowsmartly/voice-worker/internal/objectstore"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	bucketName := "voice-audio"
	store, err := objectstore.New(jetstreamContext, bucketName, "https://storage.flowsmartly.dev")
	require.NoError(t, err)

	ctx := context.Background()
	key := "tts/job-123.mp3"
	uploadData := []byte("encoded audio bytes")

	url, err := store.Upload(ctx, key, uploadData)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.flowsmartly.dev/voice-audio/tts/job-123.mp3", url)

	downloadData, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_DownloadMissingKey(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "voice-audio", "https://storage.flowsmartly.dev")
	require.NoError(t, err)

	_, err = store.Download(context.Background(), "tts/absent.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransient)
}

func TestNatsObjectStore_MissingConfiguration(t *testing.T) {
	t.Parallel()

	_, err := objectstore.New(nil, "voice-audio", "https://storage.flowsmartly.dev")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotConfigured)

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	_, err = objectstore.New(jetstreamContext, "", "https://storage.flowsmartly.dev")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestNatsObjectStore_PublicURLTrimsTrailingSlash(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "voice-audio", "https://storage.flowsmartly.dev/")
	require.NoError(t, err)

	assert.Equal(
		t,
		"https://storage.flowsmartly.dev/voice-audio/tts/a.wav",
		store.PublicURL("tts/a.wav"),
	)
}
