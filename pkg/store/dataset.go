package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/quartictech/quartic/pkg/dataset"
)

// Dataset is a live handle on one dataset in a store.
type Dataset struct {
	store      *Store
	coordinate dataset.Coordinate
}

// Coordinate returns the fully qualified coordinate of the dataset.
func (d *Dataset) Coordinate() dataset.Coordinate {
	return d.coordinate
}

func (d *Dataset) String() string {
	return d.coordinate.String()
}

// Entry returns the catalogue entry, or nil when the dataset is not registered.
func (d *Dataset) Entry(ctx context.Context) (*Entry, error) {
	entry, err := d.store.catalogue.Get(ctx, d.coordinate.Namespace, d.coordinate.ID)
	if err != nil {
		return nil, d.wrap("Get", err)
	}

	return entry, nil
}

// Exists reports whether the dataset is registered in the catalogue.
func (d *Dataset) Exists(ctx context.Context) (bool, error) {
	entry, err := d.Entry(ctx)

	return entry != nil, err
}

// DataExists reports whether the dataset is registered and its bytes are present.
func (d *Dataset) DataExists(ctx context.Context) (bool, error) {
	entry, err := d.Entry(ctx)
	if err != nil || entry == nil {
		return false, err
	}

	ok, err := d.store.blobs.Exists(ctx, entry.Locator.Path)
	if err != nil {
		return false, d.wrap("Exists", err)
	}

	return ok, nil
}

// Reader opens the dataset bytes. It fails with ErrNotFound when the dataset is not registered.
func (d *Dataset) Reader(ctx context.Context) (io.ReadCloser, error) {
	entry, err := d.Entry(ctx)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, d.wrap("Reader", fmt.Errorf("can't read non-existent dataset: %w", ErrNotFound))
	}

	body, err := d.store.blobs.Download(ctx, entry.Locator.Path)
	if err != nil {
		return nil, d.wrap("Download", err)
	}

	return body, nil
}

// Update replaces the metadata and/or extensions of a registered dataset.
func (d *Dataset) Update(ctx context.Context, metadata *Metadata, extensions map[string]any) error {
	if metadata == nil && extensions == nil {
		return d.wrap("Update", errors.New("must specify metadata or extensions"))
	}

	entry, err := d.Entry(ctx)
	if err != nil {
		return err
	}

	if entry == nil {
		return d.wrap("Update", fmt.Errorf("dataset does not exist: %w", ErrNotFound))
	}

	entry.Metadata.Registered = ""
	if metadata != nil {
		entry.Metadata = *metadata
	}

	if extensions != nil {
		entry.Extensions = extensions
	}

	return d.put(ctx, entry, true)
}

// Delete unregisters the dataset from the catalogue.
func (d *Dataset) Delete(ctx context.Context) error {
	err := d.store.catalogue.Unregister(ctx, d.coordinate.Namespace, d.coordinate.ID)
	if err != nil {
		return d.wrap("Unregister", err)
	}

	return nil
}

// WriterOptions describe the dataset being written. Name is required for new datasets.
type WriterOptions struct {
	Name        string
	Description string
	MimeType    string
	Attribution string
	Extensions  map[string]any
	Streaming   bool
}

// Writer opens a sink for the dataset. Bytes are spooled locally and only uploaded and
// registered on Commit.
func (d *Dataset) Writer(ctx context.Context, opts WriterOptions) (*Sink, error) {
	existing, err := d.Entry(ctx)
	if err != nil {
		return nil, err
	}

	var entry *Entry

	if existing != nil {
		entry = existing
		entry.Metadata.Registered = ""

		if opts.Name != "" {
			entry.Metadata.Name = opts.Name
		}

		if opts.Description != "" {
			entry.Metadata.Description = opts.Description
		}

		if opts.Extensions != nil {
			entry.Extensions = opts.Extensions
		}
	} else {
		entry, err = d.newEntry(opts)
		if err != nil {
			return nil, err
		}
	}

	tmp, err := os.CreateTemp("", "quartic-sink-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}

	return &Sink{
		dataset:   d,
		entry:     entry,
		overwrite: existing != nil,
		file:      tmp,
	}, nil
}

func (d *Dataset) newEntry(opts WriterOptions) (*Entry, error) {
	if opts.Name == "" {
		return nil, d.wrap("Writer", ErrNameRequired)
	}

	description := opts.Description
	if description == "" {
		description = opts.Name
	}

	mimeType := opts.MimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	attribution := opts.Attribution
	if attribution == "" {
		attribution = DefaultAttribution
	}

	extensions := opts.Extensions
	if extensions == nil {
		extensions = map[string]any{}
	}

	return &Entry{
		Metadata: Metadata{
			Name:        opts.Name,
			Description: description,
			Attribution: attribution,
		},
		Extensions: extensions,
		Locator: Locator{
			Type:      LocatorTypeCloud,
			Path:      BlobPath(d.coordinate.Namespace, d.coordinate.ID),
			Streaming: opts.Streaming,
			MimeType:  mimeType,
		},
	}, nil
}

func (d *Dataset) put(ctx context.Context, entry *Entry, overwrite bool) error {
	err := d.store.catalogue.Put(ctx, d.coordinate.Namespace, d.coordinate.ID, entry, overwrite)
	if err != nil {
		return d.wrap("Put", err)
	}

	return nil
}

func (d *Dataset) wrap(op string, err error) error {
	return &DatasetError{Op: op, Namespace: d.coordinate.Namespace, ID: d.coordinate.ID, Err: err}
}

// Sink collects the bytes of a dataset write. Exactly one of Commit or Cancel must be called.
type Sink struct {
	dataset   *Dataset
	entry     *Entry
	overwrite bool
	file      *os.File
	done      bool
}

func (s *Sink) Write(p []byte) (int, error) {
	if s.done {
		return 0, ErrSinkClosed
	}

	return s.file.Write(p)
}

// Commit uploads the spooled bytes and registers the catalogue entry.
func (s *Sink) Commit(ctx context.Context) error {
	if s.done {
		return ErrSinkClosed
	}

	s.done = true
	defer s.discard()

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool file: %w", err)
	}

	if err := s.dataset.store.blobs.Upload(ctx, s.entry.Locator.Path, s.file); err != nil {
		return s.dataset.wrap("Upload", err)
	}

	return s.dataset.put(ctx, s.entry, s.overwrite)
}

// Cancel discards the spooled bytes without touching the store.
func (s *Sink) Cancel() error {
	if s.done {
		return ErrSinkClosed
	}

	s.done = true
	s.discard()

	return nil
}

func (s *Sink) discard() {
	name := s.file.Name()
	_ = s.file.Close()
	_ = os.Remove(name)
}
