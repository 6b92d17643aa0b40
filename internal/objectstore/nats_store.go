// Package objectstore provides a NATS JetStream implementation of the
// object publisher used to deliver finished audio artifacts.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/flowsmartly/voice-worker/internal/core"
)

// NatsObjectStore implements core.ObjectPublisher using NATS JetStream.
type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	publicURLBase    string
	store            nats.ObjectStore
}

// New creates and initializes a new NatsObjectStore. Missing connection or
// bucket configuration is reported as core.ErrNotConfigured so callers can
// distinguish it from upload-time transport failures.
func New(jetstreamContext nats.JetStreamContext, bucketName, publicURLBase string) (*NatsObjectStore, error) {
	if jetstreamContext == nil {
		return nil, fmt.Errorf("%w: missing JetStream context", core.ErrNotConfigured)
	}

	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing object store bucket name", core.ErrNotConfigured)
	}

	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Storage for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		publicURLBase:    strings.TrimRight(publicURLBase, "/"),
		store:            store,
	}, nil
}

// Upload saves an object to the store and returns its public URL.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte) (string, error) {
	reader := bytes.NewReader(data)

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, reader)
	if err != nil {
		return "", fmt.Errorf(
			"%w: failed to put object '%s' to bucket '%s': %w",
			core.ErrTransient, key, n.bucket, err,
		)
	}

	return n.PublicURL(key), nil
}

// Download retrieves an object from the store.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: failed to get object '%s' from bucket '%s': %w",
			core.ErrTransient, key, n.bucket, err,
		)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// PublicURL composes the deterministic endpoint/bucket/key address of an
// object.
func (n *NatsObjectStore) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", n.publicURLBase, n.bucket, key)
}
