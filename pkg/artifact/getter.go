package artifact

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-getter"
)

// Fetcher downloads the file at src to the local path dst.
type Fetcher interface {
	Fetch(ctx context.Context, src, dst string) error
}

// GoGetter fetches over http(s) with go-getter, keeping archives as they are.
type GoGetter struct {
	Header http.Header
	Logger logr.Logger
}

func (g *GoGetter) Fetch(ctx context.Context, src, dst string) error {
	hg := &getter.HttpGetter{
		Header:              g.Header,
		DoNotCheckHeadFirst: true,
	}

	get := &getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Mode: getter.ClientModeFile,
		Getters: map[string]getter.Getter{
			"http":  hg,
			"https": hg,
		},
		// go-getter unpacks known archive extensions unless told otherwise
		Decompressors: map[string]getter.Decompressor{},
	}

	g.Logger.V(1).Info("get", "src", src, "dst", dst)

	if err := get.Get(); err != nil {
		return fmt.Errorf("get %s: %w", src, err)
	}

	return nil
}

// BasicAuthHeader builds the header authenticating downloads from the CI server.
func BasicAuthHeader(user, token string) http.Header {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth(user, token)
	return http.Header{"Authorization": req.Header["Authorization"]}
}
