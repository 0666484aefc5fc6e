// Package memory provides an in-process catalogue and blob service for tests and dry runs.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quartictech/quartic/pkg/store"
)

// Catalogue is an in-memory store.Catalogue.
type Catalogue struct {
	mu      sync.RWMutex
	entries map[string][]byte
	now     func() time.Time
}

func NewCatalogue() *Catalogue {
	return &Catalogue{entries: make(map[string][]byte), now: time.Now}
}

func key(namespace, id string) string {
	return namespace + "/" + id
}

func (c *Catalogue) Get(ctx context.Context, namespace, id string) (*store.Entry, error) {
	c.mu.RLock()
	data, ok := c.entries[key(namespace, id)]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}

	var entry store.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", key(namespace, id), err)
	}

	return &entry, nil
}

func (c *Catalogue) Put(ctx context.Context, namespace, id string, entry *store.Entry, overwrite bool) error {
	if !overwrite {
		existing, err := c.Get(ctx, namespace, id)
		if err != nil {
			return err
		}

		if err := store.CheckOverwrite(namespace, id, existing, entry); err != nil {
			return err
		}
	}

	stored := *entry
	stored.Metadata.Registered = c.now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", key(namespace, id), err)
	}

	c.mu.Lock()
	c.entries[key(namespace, id)] = data
	c.mu.Unlock()

	return nil
}

func (c *Catalogue) Unregister(ctx context.Context, namespace, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key(namespace, id)]; !ok {
		return &store.ServiceError{Op: "DELETE", URL: key(namespace, id), StatusCode: 404, Message: "dataset not found"}
	}

	delete(c.entries, key(namespace, id))

	return nil
}

// Blobs is an in-memory store.Blobs.
type Blobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobs() *Blobs {
	return &Blobs{blobs: make(map[string][]byte)}
}

func (b *Blobs) Exists(ctx context.Context, path string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.blobs[path]

	return ok, nil
}

func (b *Blobs) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	b.mu.RLock()
	data, ok := b.blobs[path]
	b.mu.RUnlock()

	if !ok {
		return nil, &store.ServiceError{Op: "GET", URL: path, StatusCode: 404, Message: "blob not found"}
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Blobs) Upload(ctx context.Context, path string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read upload body: %w", err)
	}

	b.mu.Lock()
	b.blobs[path] = data
	b.mu.Unlock()

	return nil
}

// Put stores data directly, for seeding raw inputs in tests.
func (b *Blobs) Put(path string, data []byte) {
	b.mu.Lock()
	b.blobs[path] = data
	b.mu.Unlock()
}

// New returns a store backed by a fresh in-memory catalogue and blob service.
func New() (*store.Store, *Catalogue, *Blobs) {
	catalogue := NewCatalogue()
	blobs := NewBlobs()

	return store.New(catalogue, blobs), catalogue, blobs
}
