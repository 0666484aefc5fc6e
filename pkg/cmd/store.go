package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quartictech/quartic/pkg/store"
	"github.com/quartictech/quartic/pkg/store/httpclient"
	"github.com/quartictech/quartic/pkg/store/local"
	"github.com/quartictech/quartic/pkg/store/memory"
)

var ErrUnsupportedStore = errors.New("unsupported store URL")

// NewStore opens the dataset store at url:
//
//	memory://               in-process, for dry runs
//	file://root             catalogue and blobs under root
//	http://, https://       catalogue and howl services; "{service}" and "{port}" are expanded
//
// token authenticates requests to the HTTP services and is ignored otherwise.
func NewStore(url, token string) (*store.Store, error) {
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, url)
	}

	switch scheme {
	case "memory":
		st, _, _ := memory.New()

		return st, nil
	case "file":
		return local.NewStore(url), nil
	case "http", "https":
		var opts []httpclient.Option
		if token != "" {
			opts = append(opts, httpclient.WithBearerToken(token))
		}

		return httpclient.New(url, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, url)
	}
}
