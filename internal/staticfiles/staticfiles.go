// Package staticfiles implements the pre-loaded static asset cache:
// walk a directory once, build one response per file, and serve every
// later request from memory.
package staticfiles

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/minumserver/minum/internal/headers"
	"github.com/minumserver/minum/internal/response"
)

// defaultMIMETypes seeds the extension-to-MIME table with the defaults
// named in the configuration table; callers may register more before
// the cache is built.
var defaultMIMETypes = map[string]string{
	".html": "text/html; charset=UTF-8",
	".htm":  "text/html; charset=UTF-8",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".txt":  "text/plain; charset=UTF-8",
	".pdf":  "application/pdf",
}

// Cache is an immutable, concurrent-read-safe map from lowercased,
// slash-rooted path to a pre-built 200 response. It is fully populated
// by Build before it is handed to the dispatcher: there is no writer
// after construction, so reads need no lock.
type Cache struct {
	assets       map[string]response.Response
	mimeTypes    map[string]string
	cacheControl string
}

// New returns an empty cache with the default MIME table, for servers
// that never configure a static directory.
func New() *Cache {
	return &Cache{
		assets:    make(map[string]response.Response),
		mimeTypes: cloneMIMETypes(),
	}
}

func cloneMIMETypes() map[string]string {
	m := make(map[string]string, len(defaultMIMETypes))
	for k, v := range defaultMIMETypes {
		m[k] = v
	}
	return m
}

// RegisterMIME adds or overrides a suffix→MIME mapping. Must be called
// before Build to affect the files it loads.
func (c *Cache) RegisterMIME(suffix, mime string) {
	c.mimeTypes[strings.ToLower(suffix)] = mime
}

// SetCacheControl sets the Cache-Control header value applied to every
// asset built afterward.
func (c *Cache) SetCacheControl(value string) {
	c.cacheControl = value
}

// Build walks root, loading every regular file into the cache keyed by
// its lowercased path relative to root (with a leading "/"). Safe to
// call once, before the cache is shared with readers.
func (c *Cache) Build(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := "/" + strings.ToLower(filepath.ToSlash(rel))

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading static asset %s: %w", path, err)
		}

		c.assets[key] = c.buildResponse(rel, data)
		return nil
	})
}

func (c *Cache) buildResponse(relPath string, data []byte) response.Response {
	ext := strings.ToLower(filepath.Ext(relPath))
	mime, ok := c.mimeTypes[ext]
	if !ok {
		mime = "application/octet-stream"
	}

	resp := response.New(response.StatusOK, data)
	resp.ExtraHeaders = newHeaders(mime, c.cacheControl)
	return resp
}

// Get returns the pre-built response for path, and whether it was found.
// path is lowercased here before lookup, so callers may pass it in any case.
func (c *Cache) Get(path string) (response.Response, bool) {
	resp, ok := c.assets[strings.ToLower(path)]
	return resp, ok
}

// Len reports how many assets are cached.
func (c *Cache) Len() int {
	return len(c.assets)
}

func newHeaders(mime, cacheControl string) *headers.Headers {
	h := headers.NewHeaders()
	h.Set("Content-Type", mime)
	if cacheControl != "" {
		h.Set("Cache-Control", cacheControl)
	}
	return h
}
