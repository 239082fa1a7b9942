package pkg

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/crypto/acme/autocert"
)

// dirLockedCache wraps autocert.DirCache with a cross-process advisory lock so that
// only one process at a time holds the exclusive cache lock, per §4.2's invariant.
// Platform-specific locking lives in acme_cache_unix.go / acme_cache_windows.go.
type dirLockedCache struct {
	autocert.DirCache
	lock fileLock
}

func newDirLockedCache(dir string, timeout time.Duration) (autocert.Cache, error) {
	lock, err := acquireFileLock(filepath.Join(dir, ".itsi-acme.lock"), timeout)
	if err != nil {
		return nil, err
	}
	return &dirLockedCache{DirCache: autocert.DirCache(dir), lock: lock}, nil
}

func (c *dirLockedCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.DirCache.Get(ctx, key)
}

func (c *dirLockedCache) Put(ctx context.Context, key string, data []byte) error {
	return c.DirCache.Put(ctx, key, data)
}

func (c *dirLockedCache) Delete(ctx context.Context, key string) error {
	return c.DirCache.Delete(ctx, key)
}

func httpClientWithRootCAs(pool *x509.CertPool) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}
}
