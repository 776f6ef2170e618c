package render

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// StaticConfig configures the static file handler the application falls
// back to for paths no controller claims
type StaticConfig struct {
	// Root is the directory files are served from
	Root string

	// MaxAge is the Cache-Control max-age in seconds
	MaxAge int

	// IndexFile is served for directory paths
	IndexFile string

	EnableETag bool

	// NotFound handles missing files, http.NotFound when nil
	NotFound http.Handler
}

// DefaultStaticConfig returns the defaults for serving root
func DefaultStaticConfig(root string) StaticConfig {
	return StaticConfig{
		Root:       root,
		MaxAge:     3600,
		IndexFile:  "index.html",
		EnableETag: true,
	}
}

// Static serves files under cfg.Root
func Static(cfg StaticConfig) http.Handler {
	etags := &sync.Map{}
	notFound := cfg.NotFound
	if notFound == nil {
		notFound = http.NotFoundHandler()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			notFound.ServeHTTP(w, r)
			return
		}

		clean := path.Clean("/" + r.URL.Path)
		if strings.Contains(clean, "..") {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}

		absRoot, err := filepath.Abs(cfg.Root)
		if err != nil {
			http.Error(w, "Server error", http.StatusInternalServerError)
			return
		}
		file := filepath.Join(absRoot, filepath.FromSlash(clean))
		if file != absRoot && !strings.HasPrefix(file, absRoot+string(filepath.Separator)) {
			http.Error(w, "Invalid path", http.StatusForbidden)
			return
		}

		info, err := os.Stat(file)
		if err != nil {
			if os.IsNotExist(err) {
				notFound.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if info.IsDir() {
			if cfg.IndexFile == "" {
				notFound.ServeHTTP(w, r)
				return
			}
			index := filepath.Join(file, cfg.IndexFile)
			indexInfo, err := os.Stat(index)
			if err != nil || indexInfo.IsDir() {
				notFound.ServeHTTP(w, r)
				return
			}
			file, info = index, indexInfo
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", cfg.MaxAge))

		if cfg.EnableETag {
			etag := fileETag(file, info, etags)
			w.Header().Set("ETag", etag)
			if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		f, err := os.Open(file)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		// ServeContent handles Last-Modified, ranges and content type sniffing
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// fileETag returns a weak ETag from size and modification time
func fileETag(file string, info os.FileInfo, cache *sync.Map) string {
	key := fmt.Sprintf("%s:%d", file, info.ModTime().UnixNano())
	if etag, ok := cache.Load(key); ok {
		return etag.(string)
	}
	etag := fmt.Sprintf(`W/"%x-%x"`, info.Size(), info.ModTime().Truncate(time.Second).Unix())
	cache.Store(key, etag)
	return etag
}
