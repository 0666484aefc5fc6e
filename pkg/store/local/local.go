// Package local provides a file system backed catalogue and blob service.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quartictech/quartic/pkg/store"
)

// NewStore creates a store rooted at root. A "file://" prefix is accepted.
func NewStore(root string) *store.Store {
	root = strings.TrimPrefix(root, "file://")

	return store.New(NewCatalogue(root), NewBlobs(root))
}

// Catalogue keeps one JSON file per entry under <root>/catalogue/<namespace>/<id>.json.
type Catalogue struct {
	root string
}

func NewCatalogue(root string) *Catalogue {
	return &Catalogue{root: strings.TrimPrefix(root, "file://")}
}

func validateComponent(s string) error {
	if s == "" {
		return errors.New("path component cannot be empty")
	}

	if strings.Contains(s, "..") || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("path component contains invalid characters: %q", s)
	}

	return nil
}

func (c *Catalogue) path(namespace, id string) (string, error) {
	for _, part := range []string{namespace, id} {
		if err := validateComponent(part); err != nil {
			return "", err
		}
	}

	return filepath.Join(c.root, "catalogue", namespace, id+".json"), nil
}

func (c *Catalogue) Get(ctx context.Context, namespace, id string) (*store.Entry, error) {
	path, err := c.path(namespace, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- components validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read catalogue entry %s/%s: %w", namespace, id, err)
	}

	var entry store.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalogue entry %s/%s: %w", namespace, id, err)
	}

	return &entry, nil
}

func (c *Catalogue) Put(ctx context.Context, namespace, id string, entry *store.Entry, overwrite bool) error {
	path, err := c.path(namespace, id)
	if err != nil {
		return err
	}

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
	stored.Metadata.Registered = time.Now().UTC().Format(time.RFC3339)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create catalogue directory: %w", err)
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalogue entry %s/%s: %w", namespace, id, err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write catalogue entry %s/%s: %w", namespace, id, err)
	}

	return nil
}

func (c *Catalogue) Unregister(ctx context.Context, namespace, id string) error {
	path, err := c.path(namespace, id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &store.ServiceError{Op: "DELETE", URL: path, StatusCode: http.StatusNotFound, Message: "dataset not found"}
		}

		return fmt.Errorf("failed to remove catalogue entry %s/%s: %w", namespace, id, err)
	}

	return nil
}

// Blobs maps blob paths onto files under <root>/blobs.
type Blobs struct {
	root string
}

func NewBlobs(root string) *Blobs {
	return &Blobs{root: strings.TrimPrefix(root, "file://")}
}

func (b *Blobs) file(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("blob path contains invalid characters: %q", path)
	}

	return filepath.Join(b.root, "blobs", filepath.FromSlash(clean)), nil
}

func (b *Blobs) Exists(ctx context.Context, path string) (bool, error) {
	file, err := b.file(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(file)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat blob %s: %w", path, err)
	}

	return true, nil
}

func (b *Blobs) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := b.file(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file) // #nosec G304 -- path cleaned above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &store.ServiceError{Op: "GET", URL: path, StatusCode: http.StatusNotFound, Message: "blob not found"}
		}

		return nil, fmt.Errorf("failed to open blob %s: %w", path, err)
	}

	return f, nil
}

func (b *Blobs) Upload(ctx context.Context, path string, body io.Reader) error {
	file, err := b.file(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	f, err := os.Create(file) // #nosec G304 -- path cleaned above
	if err != nil {
		return fmt.Errorf("failed to create blob %s: %w", path, err)
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to write blob %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close blob %s: %w", path, err)
	}

	return nil
}
