// Package httpclient talks to the remote catalogue and howl (blob) services over HTTP.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quartictech/quartic/pkg/store"
)

const (
	// DefaultURLFormat is the in-cluster address template of the platform services.
	DefaultURLFormat = "http://{service}.platform:{port}/api/"

	CataloguePort = 8090
	HowlPort      = 8120

	defaultTimeout = 60 * time.Second
)

// Option configures a service client.
type Option func(*service)

// WithBearerToken authenticates every request with token.
func WithBearerToken(token string) Option {
	return func(s *service) {
		s.token = token
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *service) {
		s.client = client
	}
}

// APIRoot expands a "{service}"/"{port}" URL template.
func APIRoot(format, serviceName string, port int) string {
	return strings.NewReplacer("{service}", serviceName, "{port}", strconv.Itoa(port)).Replace(format)
}

// New returns a store backed by the catalogue and howl services addressed through format.
func New(format string, opts ...Option) *store.Store {
	return store.New(
		NewCatalogue(APIRoot(format, "catalogue", CataloguePort), opts...),
		NewHowl(APIRoot(format, "howl", HowlPort), opts...),
	)
}

type service struct {
	apiRoot *url.URL
	client  *http.Client
	token   string
}

func newService(apiRoot string, opts ...Option) *service {
	if !strings.HasSuffix(apiRoot, "/") {
		apiRoot += "/"
	}

	root, err := url.Parse(apiRoot)
	if err != nil {
		root = &url.URL{Path: apiRoot}
	}

	s := &service{
		apiRoot: root,
		client:  &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) url(resource string) string {
	ref, err := url.Parse(strings.TrimLeft(resource, "/"))
	if err != nil {
		return s.apiRoot.String() + strings.TrimLeft(resource, "/")
	}

	return s.apiRoot.ResolveReference(ref).String()
}

// do performs the request and returns the response for 2xx codes. With allow404 a 404 yields
// (nil, nil). Any other status is a *store.ServiceError carrying the response body.
func (s *service) do(ctx context.Context, method, resource string, body io.Reader, contentType string, allow404 bool) (*http.Response, error) {
	target := s.url(resource)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request for %s: %w", method, target, err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request for %s: %w", method, target, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && allow404 {
		return nil, nil
	}

	message, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	return nil, &store.ServiceError{
		Op:         method,
		URL:        target,
		StatusCode: resp.StatusCode,
		Message:    string(message),
	}
}

func quote(s string) string {
	return url.PathEscape(s)
}
