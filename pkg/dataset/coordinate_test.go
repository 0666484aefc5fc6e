package dataset_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	calls []string
}

func (f *fakeResolver) Dataset(namespace, id string) (string, error) {
	f.calls = append(f.calls, namespace+"/"+id)

	return "handle:" + namespace + "/" + id, nil
}

func TestCoordinateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "::foo", dataset.Unqualified("foo").String())
	assert.Equal(t, "bar::foo", dataset.Qualified("bar", "foo").String())
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"::foo", "bar::foo", "ns-1::some_dataset.v2"} {
		t.Run(s, func(t *testing.T) {
			t.Parallel()

			c, err := dataset.Parse(s)
			require.NoError(t, err)
			assert.Equal(t, s, c.String())

			again, err := dataset.Parse(c.String())
			require.NoError(t, err)
			assert.Equal(t, c, again)
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := dataset.Parse("::foo")
	require.NoError(t, err)
	assert.Equal(t, dataset.Unqualified("foo"), c)

	c, err = dataset.Parse("bar::foo")
	require.NoError(t, err)
	assert.Equal(t, dataset.Qualified("bar", "foo"), c)

	_, err = dataset.Parse("foo")
	require.ErrorIs(t, err, dataset.ErrMalformed)

	_, err = dataset.Parse("a::b::c")
	require.ErrorIs(t, err, dataset.ErrInvalidCoordinate)
}

func TestNewRejectsColon(t *testing.T) {
	t.Parallel()

	_, err := dataset.New("foo:x", "")
	require.ErrorIs(t, err, dataset.ErrInvalidCoordinate)

	_, err = dataset.New("foo", "ns:x")
	require.ErrorIs(t, err, dataset.ErrInvalidCoordinate)

	var coordErr *dataset.CoordinateError
	require.True(t, errors.As(err, &coordErr))
	assert.Equal(t, "ns:x", coordErr.Value)

	assert.Panics(t, func() { dataset.Unqualified("a:b") })
}

func TestFullyQualified(t *testing.T) {
	t.Parallel()

	unqualified := dataset.Unqualified("foo")
	qualified := unqualified.FullyQualified("bar")

	assert.Equal(t, dataset.Qualified("bar", "foo"), qualified)
	assert.Equal(t, qualified, qualified.FullyQualified("other"))
	assert.Equal(t, qualified, qualified.FullyQualified("bar").FullyQualified("baz"))
	assert.Equal(t, dataset.Qualified("x", "foo"), qualified.WithNamespace("x"))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}

	_, err := dataset.Resolve[string](dataset.Unqualified("foo"), resolver)
	require.ErrorIs(t, err, dataset.ErrUnqualified)
	assert.Empty(t, resolver.calls)

	handle, err := dataset.Resolve[string](dataset.Qualified("bar", "foo"), resolver)
	require.NoError(t, err)
	assert.Equal(t, "handle:bar/foo", handle)
	assert.Equal(t, []string{"bar/foo"}, resolver.calls)
}

func TestCoordinateJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(dataset.Unqualified("foo"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"namespace": null, "dataset_id": "foo"}`, string(data))

	data, err = json.Marshal(dataset.Qualified("bar", "foo"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"namespace": "bar", "dataset_id": "foo"}`, string(data))

	var c dataset.Coordinate
	require.NoError(t, json.Unmarshal(data, &c))
	assert.Equal(t, dataset.Qualified("bar", "foo"), c)

	require.Error(t, json.Unmarshal([]byte(`{"namespace": "a:b", "dataset_id": "foo"}`), &c))
}
