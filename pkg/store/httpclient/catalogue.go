package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quartictech/quartic/pkg/store"
)

// Catalogue is the HTTP client of the catalogue service.
type Catalogue struct {
	*service
}

func NewCatalogue(apiRoot string, opts ...Option) *Catalogue {
	return &Catalogue{service: newService(apiRoot, opts...)}
}

func datasetResource(namespace, id string) string {
	return fmt.Sprintf("datasets/%s/%s", namespace, quote(id))
}

// Get returns the entry, or nil when the catalogue answers 404.
func (c *Catalogue) Get(ctx context.Context, namespace, id string) (*store.Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, datasetResource(namespace, id), nil, "", true)
	if err != nil || resp == nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entry store.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("failed to decode catalogue entry %s/%s: %w", namespace, id, err)
	}

	return &entry, nil
}

// Put registers entry. Without overwrite, an existing different entry is an error.
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

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal catalogue entry %s/%s: %w", namespace, id, err)
	}

	resp, err := c.do(ctx, http.MethodPut, datasetResource(namespace, id), bytes.NewReader(payload), "application/json", false)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

func (c *Catalogue) Unregister(ctx context.Context, namespace, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, datasetResource(namespace, id), nil, "", false)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}
