package httpclient_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/quartictech/quartic/pkg/store"
	"github.com/quartictech/quartic/pkg/store/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct {
	mu       sync.Mutex
	entries  map[string][]byte
	blobs    map[string][]byte
	requests []string
	auth     []string
}

func newFakePlatform(t *testing.T) *httptest.Server {
	t.Helper()

	p := &fakePlatform{entries: map[string][]byte{}, blobs: map[string][]byte{}}
	server := httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(server.Close)

	return server
}

func (p *fakePlatform) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := r.URL.EscapedPath()
	p.requests = append(p.requests, r.Method+" "+path)
	p.auth = append(p.auth, r.Header.Get("Authorization"))

	switch {
	case strings.HasPrefix(path, "/api/datasets/"):
		key := strings.TrimPrefix(path, "/api/datasets/")

		switch r.Method {
		case http.MethodGet:
			data, ok := p.entries[key]
			if !ok {
				http.Error(w, "no such dataset", http.StatusNotFound)

				return
			}

			_, _ = w.Write(data)
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			p.entries[key] = data
		case http.MethodDelete:
			if _, ok := p.entries[key]; !ok {
				http.Error(w, "no such dataset", http.StatusNotFound)

				return
			}

			delete(p.entries, key)
		}
	case strings.HasPrefix(path, "/api/forbidden"):
		http.Error(w, "computer says no", http.StatusForbidden)
	default:
		key := strings.TrimPrefix(path, "/api")

		switch r.Method {
		case http.MethodHead, http.MethodGet:
			data, ok := p.blobs[key]
			if !ok {
				http.Error(w, "no such blob", http.StatusNotFound)

				return
			}

			_, _ = w.Write(data)
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			p.blobs[key] = data
		}
	}
}

func TestAPIRoot(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://catalogue.platform:8090/api/",
		httpclient.APIRoot(httpclient.DefaultURLFormat, "catalogue", httpclient.CataloguePort))
	assert.Equal(t, "http://howl.platform:8120/api/",
		httpclient.APIRoot(httpclient.DefaultURLFormat, "howl", httpclient.HowlPort))
}

func TestCatalogueRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := newFakePlatform(t)
	catalogue := httpclient.NewCatalogue(server.URL+"/api/", httpclient.WithBearerToken("secret"))

	entry, err := catalogue.Get(ctx, "ns", "my dataset")
	require.NoError(t, err)
	assert.Nil(t, entry)

	want := &store.Entry{
		Metadata:   store.Metadata{Name: "x", Description: "y", Attribution: "quartic"},
		Extensions: map[string]any{},
		Locator:    store.Locator{Type: "cloud", Path: store.BlobPath("ns", "my dataset")},
	}
	require.NoError(t, catalogue.Put(ctx, "ns", "my dataset", want, false))

	got, err := catalogue.Get(ctx, "ns", "my dataset")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	different := *want
	different.Metadata.Name = "z"
	require.ErrorIs(t, catalogue.Put(ctx, "ns", "my dataset", &different, false), store.ErrEntriesDiffer)
	require.NoError(t, catalogue.Put(ctx, "ns", "my dataset", &different, true))

	require.NoError(t, catalogue.Unregister(ctx, "ns", "my dataset"))

	err = catalogue.Unregister(ctx, "ns", "my dataset")
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))

	var serviceErr *store.ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, http.StatusNotFound, serviceErr.StatusCode)
	assert.Contains(t, serviceErr.Message, "no such dataset")
}

func TestServiceErrorIsSurfacedVerbatim(t *testing.T) {
	t.Parallel()

	server := newFakePlatform(t)
	howl := httpclient.NewHowl(server.URL + "/api/")

	_, err := howl.Download(context.Background(), "/forbidden")
	require.Error(t, err)
	assert.True(t, store.IsServiceError(err))
	assert.False(t, store.IsNotFound(err))
	assert.Contains(t, err.Error(), "computer says no")
}

func TestStoreOverHTTP(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := newFakePlatform(t)
	st := httpclient.New(server.URL + "/api/")

	exists, err := st.Exists(ctx, "ns", "raw.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, st.Upload(ctx, "ns", "raw.csv", strings.NewReader("a,b\n1,2\n")))

	exists, err = st.Exists(ctx, "ns", "raw.csv")
	require.NoError(t, err)
	assert.True(t, exists)

	ds, err := st.Dataset("ns", "out")
	require.NoError(t, err)
	require.NoError(t, store.WriteJSON("out", "", map[string]int{"rows": 1}).Apply(ctx, ds))

	var got map[string]int
	require.NoError(t, store.ReadJSON(ctx, ds, &got))
	assert.Equal(t, map[string]int{"rows": 1}, got)

	entry, err := ds.Entry(ctx)
	require.NoError(t, err)

	raw, err := json.Marshal(entry.Locator)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"cloud","path":"/ns/managed/ns/out","streaming":false,"mime_type":"application/json"}`, string(raw))
}
