package store_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/store"
	"github.com/quartictech/quartic/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/ns/managed/ns/raw%2Fevents.csv", store.BlobPath("ns", "raw/events.csv"))
	assert.Equal(t, "/ns/managed/ns/foo", store.BlobPath("ns", "foo"))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	st, _, _ := memory.New()

	_, err := st.Resolve(dataset.Unqualified("foo"))
	require.ErrorIs(t, err, dataset.ErrUnqualified)

	ds, err := st.Resolve(dataset.Qualified("bar", "foo"))
	require.NoError(t, err)
	assert.Equal(t, dataset.Qualified("bar", "foo"), ds.Coordinate())
}

func TestWriterForNewDataset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, catalogue, _ := memory.New()

	ds, err := st.Dataset("ns", "clean")
	require.NoError(t, err)

	require.NoError(t, store.WriteBytes("Clean data", "", "text/plain", []byte("hello")).Apply(ctx, ds))

	entry, err := catalogue.Get(ctx, "ns", "clean")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Clean data", entry.Metadata.Name)
	assert.Equal(t, "Clean data", entry.Metadata.Description)
	assert.Equal(t, store.DefaultAttribution, entry.Metadata.Attribution)
	assert.NotEmpty(t, entry.Metadata.Registered)
	assert.Equal(t, store.Locator{
		Type:     store.LocatorTypeCloud,
		Path:     store.BlobPath("ns", "clean"),
		MimeType: "text/plain",
	}, entry.Locator)

	body, err := ds.Reader(ctx)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	exists, err := ds.DataExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWriterForExistingDataset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, catalogue, _ := memory.New()

	ds, err := st.Dataset("ns", "clean")
	require.NoError(t, err)

	require.NoError(t, store.WriteJSON("first", "first run", []int{1}).Apply(ctx, ds))
	require.NoError(t, store.WriteJSON("", "second run", []int{1, 2}).Apply(ctx, ds))

	entry, err := catalogue.Get(ctx, "ns", "clean")
	require.NoError(t, err)
	assert.Equal(t, "first", entry.Metadata.Name)
	assert.Equal(t, "second run", entry.Metadata.Description)

	var got []int
	require.NoError(t, store.ReadJSON(ctx, ds, &got))
	assert.Equal(t, []int{1, 2}, got)
}

func TestWriterRequiresNameForNewDataset(t *testing.T) {
	t.Parallel()

	st, _, _ := memory.New()
	ds, err := st.Dataset("ns", "clean")
	require.NoError(t, err)

	_, err = ds.Writer(context.Background(), store.WriterOptions{})
	require.ErrorIs(t, err, store.ErrNameRequired)
}

func TestSinkCancel(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, catalogue, blobs := memory.New()

	ds, err := st.Dataset("ns", "clean")
	require.NoError(t, err)

	sink, err := ds.Writer(ctx, store.WriterOptions{Name: "clean"})
	require.NoError(t, err)

	_, err = sink.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, sink.Cancel())

	require.ErrorIs(t, sink.Cancel(), store.ErrSinkClosed)
	require.ErrorIs(t, sink.Commit(ctx), store.ErrSinkClosed)

	entry, err := catalogue.Get(ctx, "ns", "clean")
	require.NoError(t, err)
	assert.Nil(t, entry)

	exists, err := blobs.Exists(ctx, store.BlobPath("ns", "clean"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWriterCancelsOnBodyError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, catalogue, _ := memory.New()

	ds, err := st.Dataset("ns", "clean")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WriteFrom("clean", "", "", failingReader{err: boom}).Apply(ctx, ds)
	require.ErrorIs(t, err, boom)

	entry, err := catalogue.Get(ctx, "ns", "clean")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReaderOfMissingDataset(t *testing.T) {
	t.Parallel()

	st, _, _ := memory.New()
	ds, err := st.Dataset("ns", "missing")
	require.NoError(t, err)

	_, err = ds.Reader(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))

	var dsErr *store.DatasetError
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, "missing", dsErr.ID)
}

func TestCheckOverwrite(t *testing.T) {
	t.Parallel()

	entry := &store.Entry{Metadata: store.Metadata{Name: "a"}, Locator: store.Locator{Path: "/p"}}
	same := *entry
	same.Metadata.Registered = "2017-01-01T00:00:00Z"
	different := *entry
	different.Metadata.Name = "b"

	require.NoError(t, store.CheckOverwrite("ns", "id", nil, entry))
	require.NoError(t, store.CheckOverwrite("ns", "id", &same, entry))
	require.ErrorIs(t, store.CheckOverwrite("ns", "id", &different, entry), store.ErrEntriesDiffer)
}

func TestUpdateAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st, _, _ := memory.New()

	ds, err := st.Dataset("ns", "clean")
	require.NoError(t, err)

	require.Error(t, ds.Update(ctx, nil, nil))
	require.ErrorIs(t, ds.Update(ctx, &store.Metadata{Name: "x"}, nil), store.ErrNotFound)

	require.NoError(t, store.WriteBytes("clean", "", "", []byte("x")).Apply(ctx, ds))
	require.NoError(t, ds.Update(ctx, nil, map[string]any{"owner": "data-team"}))

	entry, err := ds.Entry(ctx)
	require.NoError(t, err)
	assert.Equal(t, "data-team", entry.Extensions["owner"])

	require.NoError(t, ds.Delete(ctx))

	exists, err := ds.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.ErrorIs(t, ds.Delete(ctx), store.ErrNotFound)
}

type failingReader struct {
	err error
}

func (f failingReader) Read([]byte) (int, error) {
	return 0, f.err
}
