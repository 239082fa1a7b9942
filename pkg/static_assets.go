package pkg

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// NotFoundBehavior enumerates what the static file server does when a request
// names no file it can serve, per §4.9 step 6.
type NotFoundBehavior int

const (
	NotFoundFallThrough NotFoundBehavior = iota
	NotFoundIndexFile
	NotFoundRedirect
	NotFoundInternalServerError
	NotFoundError
)

// cachedFile is one path-keyed cache entry: a fully-read small file, rechecked
// against disk only after recheckInterval has elapsed (§4.9 step 5).
type cachedFile struct {
	data      []byte
	modTime   time.Time
	etag      string
	cachedAt  time.Time
	sizeAtCache int64
}

// StaticFileServer is the path-keyed cache of recently served files described
// by §4.9: small files are cached in memory and periodically rechecked,
// larger files are always streamed from disk. Grounded on the teacher's
// osFileSystem (filesystem.go) for root-relative path resolution, with the
// cache/range/index/directory-listing contract added fresh since nothing in
// the teacher's VirtualFS abstraction implements it.
type StaticFileServer struct {
	root              string
	maxEntries        int
	maxFileSize       int64
	recheckInterval   time.Duration
	autoIndex         bool
	tryHTMLExtension  bool
	serveDotFiles     bool
	disallowedExt     map[string]bool
	notFound          NotFoundBehavior
	notFoundResponse  *Response

	mu    sync.Mutex
	cache map[string]*cachedFile
}

// StaticFileServerConfig collects §4.9's configuration knobs.
type StaticFileServerConfig struct {
	Root             string
	MaxEntries       int
	MaxFileSize      int64
	RecheckInterval  time.Duration
	AutoIndex        bool
	TryHTMLExtension bool
	ServeDotFiles    bool
	DisallowedExt    []string
	NotFound         NotFoundBehavior
	NotFoundResponse *Response
}

func NewStaticFileServer(cfg StaticFileServerConfig) *StaticFileServer {
	disallowed := make(map[string]bool, len(cfg.DisallowedExt))
	for _, ext := range cfg.DisallowedExt {
		disallowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	maxFileSize := cfg.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = 5 << 20
	}
	recheck := cfg.RecheckInterval
	if recheck <= 0 {
		recheck = time.Second
	}
	return &StaticFileServer{
		root:             filepath.Clean(cfg.Root),
		maxEntries:       maxEntries,
		maxFileSize:      maxFileSize,
		recheckInterval:  recheck,
		autoIndex:        cfg.AutoIndex,
		tryHTMLExtension: cfg.TryHTMLExtension,
		serveDotFiles:    cfg.ServeDotFiles,
		disallowedExt:    disallowed,
		notFound:         cfg.NotFound,
		notFoundResponse: cfg.NotFoundResponse,
		cache:            make(map[string]*cachedFile),
	}
}

// normalizePath percent-decodes and rejects traversal, backslashes, and
// (unless configured) hidden/dot segments, per §4.9 step 1 and the §9 open
// question's recommendation to reject any dot-leading segment, not just the
// leaf.
func normalizeStaticPath(reqPath string) (string, error) {
	decoded, err := url.PathUnescape(reqPath)
	if err != nil {
		return "", NewCoreError(KindInvalidInput, "invalid percent-encoding in path")
	}
	if strings.Contains(decoded, "\\") {
		return "", NewCoreError(KindInvalidInput, "backslashes are not permitted in static paths")
	}
	clean := path.Clean("/" + decoded)
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", NewCoreError(KindInvalidInput, "path traversal is not permitted")
		}
	}
	return clean, nil
}

func hasDotSegment(clean string) bool {
	for _, seg := range strings.Split(clean, "/") {
		if strings.HasPrefix(seg, ".") && seg != "" {
			return true
		}
	}
	return false
}

// Serve implements the §4.9 contract: normalize, directory redirect,
// index/auto-index fallback, Range/If-Modified-Since/HEAD handling, cache
// recheck, and not-found dispatch.
func (s *StaticFileServer) Serve(ctx Context) (bool, error) {
	req := ctx.Request()
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false, nil
	}

	clean, err := normalizeStaticPath(req.URL.Path)
	if err != nil {
		return true, err
	}
	if !s.serveDotFiles && hasDotSegment(clean) {
		return true, NewCoreError(KindInvalidInput, "dot-files are not served").WithStatus(http.StatusForbidden)
	}

	absPath := filepath.Join(s.root, filepath.FromSlash(clean))
	info, err := os.Stat(absPath)

	switch {
	case err == nil && info.IsDir():
		if !strings.HasSuffix(clean, "/") {
			ctx.Response().Header().Set("Location", clean+"/")
			ctx.Response().WriteHeader(http.StatusMovedPermanently)
			return true, nil
		}
		return s.serveDirectory(ctx, absPath, clean)
	case err == nil:
		if ext := strings.TrimPrefix(filepath.Ext(clean), "."); s.disallowedExt[strings.ToLower(ext)] {
			return s.notFoundDispatch(ctx, clean)
		}
		return true, s.serveFile(ctx, absPath, info)
	default:
		return s.serveDirectory(ctx, absPath, clean)
	}
}

// serveDirectory tries index.html, then path.html (if configured), then an
// auto-index listing, then the configured not-found behavior — §4.9 step 3.
func (s *StaticFileServer) serveDirectory(ctx Context, absDir, cleanPath string) (bool, error) {
	for _, candidate := range []string{"index.html", "Index.html", "INDEX.HTML"} {
		idxPath := filepath.Join(absDir, candidate)
		if info, err := os.Stat(idxPath); err == nil && !info.IsDir() {
			return true, s.serveFile(ctx, idxPath, info)
		}
	}
	if s.tryHTMLExtension {
		htmlPath := strings.TrimSuffix(absDir, string(filepath.Separator)) + ".html"
		if info, err := os.Stat(htmlPath); err == nil && !info.IsDir() {
			return true, s.serveFile(ctx, htmlPath, info)
		}
	}
	if s.autoIndex {
		if info, err := os.Stat(absDir); err == nil && info.IsDir() {
			return true, s.serveListing(ctx, absDir, cleanPath)
		}
	}
	return s.notFoundDispatch(ctx, cleanPath)
}

type listingEntry struct {
	name  string
	isDir bool
}

// serveListing synthesises a directory listing sorted directories-first
// (alphabetically), hidden entries last, then files likewise — §4.9 step 3.
func (s *StaticFileServer) serveListing(ctx Context, absDir, cleanPath string) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		return NewCoreError(KindAppException, "failed to read directory").WithCause(err)
	}
	items := make([]listingEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, listingEntry{name: e.Name(), isDir: e.IsDir()})
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.isDir != b.isDir {
			return a.isDir
		}
		ah, bh := strings.HasPrefix(a.name, "."), strings.HasPrefix(b.name, ".")
		if ah != bh {
			return !ah
		}
		return strings.ToLower(a.name) < strings.ToLower(b.name)
	})

	var body strings.Builder
	fmt.Fprintf(&body, "<html><head><title>Index of %s</title></head><body><h1>Index of %s</h1><ul>", cleanPath, cleanPath)
	if cleanPath != "/" {
		body.WriteString(`<li><a href="../">../</a></li>`)
	}
	for _, item := range items {
		name := item.name
		if item.isDir {
			name += "/"
		}
		fmt.Fprintf(&body, `<li><a href="%s">%s</a></li>`, name, name)
	}
	body.WriteString("</ul></body></html>")

	w := ctx.Response()
	w.SetContentType("text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write([]byte(body.String()))
	return err
}

// notFoundDispatch implements §4.9 step 6's NotFoundBehavior switch.
func (s *StaticFileServer) notFoundDispatch(ctx Context, cleanPath string) (bool, error) {
	switch s.notFound {
	case NotFoundFallThrough:
		return false, nil
	case NotFoundIndexFile:
		idxPath := filepath.Join(s.root, "index.html")
		if info, err := os.Stat(idxPath); err == nil {
			return true, s.serveFile(ctx, idxPath, info)
		}
		return true, NewCoreError(KindInvalidInput, "not found").WithStatus(http.StatusNotFound)
	case NotFoundRedirect:
		ctx.Response().Header().Set("Location", "/")
		ctx.Response().WriteHeader(http.StatusFound)
		return true, nil
	case NotFoundInternalServerError:
		return true, NewCoreError(KindAppException, "static asset not found").WithStatus(http.StatusInternalServerError)
	case NotFoundError:
		if s.notFoundResponse != nil {
			w := ctx.Response()
			for k, vs := range s.notFoundResponse.Header {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(s.notFoundResponse.StatusCode)
			w.Write(s.notFoundResponse.Body)
			return true, nil
		}
		return true, NewCoreError(KindInvalidInput, "not found").WithStatus(http.StatusNotFound)
	default:
		return true, NewCoreError(KindInvalidInput, "not found").WithStatus(http.StatusNotFound)
	}
}

// serveFile implements §4.9 steps 4-5: If-Modified-Since, Range, HEAD, and the
// cache-vs-stream size split.
func (s *StaticFileServer) serveFile(ctx Context, absPath string, info os.FileInfo) error {
	req := ctx.Request()
	w := ctx.Response()

	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil && !info.ModTime().Truncate(time.Second).After(t) {
			w.WriteHeader(http.StatusNotModified)
			return nil
		}
	}

	contentType := mime.TypeByExtension(filepath.Ext(absPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	w.Header().Set("Accept-Ranges", "bytes")
	w.SetContentType(contentType)

	var data []byte
	if info.Size() <= s.maxFileSize {
		cached, err := s.cachedData(absPath, info)
		if err != nil {
			return NewCoreError(KindAppException, "failed to read static file").WithCause(err)
		}
		data = cached
	}

	rangeHeader := req.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
		if req.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return nil
		}
		w.WriteHeader(http.StatusOK)
		if data != nil {
			_, err := w.Write(data)
			return err
		}
		return s.streamFile(w, absPath, 0, info.Size()-1)
	}

	start, end, ok := parseRangeHeader(rangeHeader, info.Size())
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size()))
		return NewCoreError(KindInvalidInput, "range not satisfiable").WithStatus(http.StatusRequestedRangeNotSatisfiable)
	}
	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size()))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if req.Method == http.MethodHead {
		return nil
	}
	if data != nil {
		_, err := w.Write(data[start : end+1])
		return err
	}
	return s.streamFile(w, absPath, start, end)
}

func (s *StaticFileServer) streamFile(w ResponseWriter, absPath string, start, end int64) error {
	f, err := os.Open(absPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return err
	}
	_, err = io.CopyN(w, f, end-start+1)
	if err == io.EOF {
		err = nil
	}
	return err
}

func (s *StaticFileServer) cachedData(absPath string, info os.FileInfo) ([]byte, error) {
	s.mu.Lock()
	entry, ok := s.cache[absPath]
	if ok && time.Since(entry.cachedAt) < s.recheckInterval && entry.modTime.Equal(info.ModTime()) && entry.sizeAtCache == info.Size() {
		data := entry.data
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.cache) >= s.maxEntries {
		for k := range s.cache {
			delete(s.cache, k)
			break
		}
	}
	s.cache[absPath] = &cachedFile{data: data, modTime: info.ModTime(), cachedAt: time.Now(), sizeAtCache: info.Size()}
	s.mu.Unlock()
	return data, nil
}

// parseRangeHeader parses a single "bytes=a-b" range, per §4.9 step 4 and §8's
// range-correctness invariant: an open-ended range becomes start..EOF-1, and a
// start past EOF is unsatisfiable.
func parseRangeHeader(header string, size int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		spec = strings.SplitN(spec, ",", 2)[0]
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	if parts[0] == "" {
		suffix, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, false
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, true
	}
	s, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || s < 0 || s >= size {
		return 0, 0, false
	}
	if parts[1] == "" {
		return s, size - 1, true
	}
	e, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || e < s {
		return 0, 0, false
	}
	if e >= size {
		e = size - 1
	}
	return s, e, true
}

// StaticAssets is the §4.8 middleware adapter: for GET/HEAD it delegates to a
// StaticFileServer, short-circuiting the chain when the server produced a
// response (found, redirected, or dispatched its NotFoundBehavior as
// terminal).
type StaticAssets struct {
	baseLayer
	server *StaticFileServer
}

func NewStaticAssets(server *StaticFileServer) *StaticAssets {
	return &StaticAssets{server: server}
}

func (s *StaticAssets) Priority() MiddlewarePriority { return PriorityStaticAssets }

func (s *StaticAssets) Before(ctx Context) (bool, error) {
	return s.server.Serve(ctx)
}
