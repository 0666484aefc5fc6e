package httpclient

import (
	"context"
	"io"
	"net/http"

	"github.com/quartictech/quartic/pkg/store"
)

// Howl is the HTTP client of the blob service. Paths are those built by store.BlobPath.
type Howl struct {
	*service
}

func NewHowl(apiRoot string, opts ...Option) *Howl {
	return &Howl{service: newService(apiRoot, opts...)}
}

// Exists issues a HEAD request. Any failure, including transport errors, reads as absent.
func (h *Howl) Exists(ctx context.Context, path string) (bool, error) {
	resp, err := h.do(ctx, http.MethodHead, path, nil, "", false)
	if err != nil {
		return false, nil
	}

	return true, resp.Body.Close()
}

func (h *Howl) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	resp, err := h.do(ctx, http.MethodGet, path, nil, "", false)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

func (h *Howl) Upload(ctx context.Context, path string, body io.Reader) error {
	resp, err := h.do(ctx, http.MethodPut, path, body, store.DefaultMimeType, false)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}
