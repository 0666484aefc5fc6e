// Package store provides the dataset store contract: a catalogue of dataset entries and a
// blob service holding their bytes, plus the Dataset handle steps read from and write to.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"reflect"

	"github.com/quartictech/quartic/pkg/dataset"
)

const (
	LocatorTypeCloud   = "cloud"
	DefaultMimeType    = "application/octet-stream"
	DefaultAttribution = "quartic"
)

// Metadata is the human-facing part of a catalogue entry.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Attribution string `json:"attribution"`
	Registered  string `json:"registered,omitempty"` // set by the catalogue
}

// Locator points at the bytes of a dataset in the blob service.
type Locator struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Streaming bool   `json:"streaming"`
	MimeType  string `json:"mime_type"`
}

// Entry is a catalogue record.
type Entry struct {
	Metadata   Metadata       `json:"metadata"`
	Extensions map[string]any `json:"extensions"`
	Locator    Locator        `json:"locator"`
}

// Catalogue stores dataset entries. Get returns (nil, nil) when the entry does not exist.
type Catalogue interface {
	Get(ctx context.Context, namespace, id string) (*Entry, error)
	Put(ctx context.Context, namespace, id string, entry *Entry, overwrite bool) error
	Unregister(ctx context.Context, namespace, id string) error
}

// Blobs stores raw bytes addressed by blob path (see BlobPath).
type Blobs interface {
	Exists(ctx context.Context, path string) (bool, error)
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Upload(ctx context.Context, path string, body io.Reader) error
}

// BlobPath returns the managed blob path for key in namespace.
func BlobPath(namespace, key string) string {
	return fmt.Sprintf("/%s/managed/%s/%s", namespace, namespace, url.PathEscape(key))
}

// Store combines a catalogue and a blob service.
type Store struct {
	catalogue Catalogue
	blobs     Blobs
}

// New creates a store over the given catalogue and blob service.
func New(catalogue Catalogue, blobs Blobs) *Store {
	return &Store{catalogue: catalogue, blobs: blobs}
}

// Dataset returns a handle for (namespace, id). It implements dataset.Resolver.
func (s *Store) Dataset(namespace, id string) (*Dataset, error) {
	c, err := dataset.New(id, namespace)
	if err != nil {
		return nil, err
	}

	return &Dataset{store: s, coordinate: c}, nil
}

// Resolve returns a handle for a fully qualified coordinate.
func (s *Store) Resolve(c dataset.Coordinate) (*Dataset, error) {
	return dataset.Resolve[*Dataset](c, s)
}

// Exists reports whether the blob for key exists in namespace.
func (s *Store) Exists(ctx context.Context, namespace, key string) (bool, error) {
	return s.blobs.Exists(ctx, BlobPath(namespace, key))
}

// Download opens the blob for key in namespace.
func (s *Store) Download(ctx context.Context, namespace, key string) (io.ReadCloser, error) {
	return s.blobs.Download(ctx, BlobPath(namespace, key))
}

// Upload writes body as the blob for key in namespace.
func (s *Store) Upload(ctx context.Context, namespace, key string, body io.Reader) error {
	return s.blobs.Upload(ctx, BlobPath(namespace, key), body)
}

// CheckOverwrite is shared by catalogue implementations: a put without overwrite is only
// allowed when no entry exists or the existing one matches, ignoring the registered stamp.
func CheckOverwrite(namespace, id string, existing, entry *Entry) error {
	if existing == nil {
		return nil
	}

	left, err := normalise(existing)
	if err != nil {
		return err
	}

	right, err := normalise(entry)
	if err != nil {
		return err
	}

	if reflect.DeepEqual(left, right) {
		return nil
	}

	return fmt.Errorf("[%s / %s] %w: existing %v, new %v. Specify overwrite to replace",
		namespace, id, ErrEntriesDiffer, left, right)
}

func normalise(entry *Entry) (map[string]any, error) {
	clone := *entry
	clone.Metadata.Registered = ""

	data, err := json.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalogue entry: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalogue entry: %w", err)
	}

	return out, nil
}
