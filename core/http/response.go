//go:build linux

package http

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"github.com/searchktools/reactor-server/core/buffer"
	"github.com/searchktools/reactor-server/core/router"
)

// CodeUnset lets MakeResponse choose the status from the file lookup
const CodeUnset = -1

// Keep-alive advisory sent with persistent responses
const keepAliveHint = "keep-alive: max=6, timeout=120\r\n"

const errorBody = "<html><title>Error</title><body bgcolor=\"ffffff\">%d : %s\n<p>%s</p><hr><em>reactor-server</em></body></html>"

// Response renders the status line and headers into a buffer and holds
// the file body as a read-only private mapping.
//
// At most one mapping is live per Response. Init and UnmapFile release it.
type Response struct {
	code      int
	keepAlive bool
	root      string
	path      string
	post      map[string]string
	routes    *router.Router
	file      []byte
}

// NewResponse returns a response that dispatches reserved paths to routes,
// which may be nil.
func NewResponse(routes *router.Router) *Response {
	return &Response{code: CodeUnset, routes: routes}
}

// Init prepares the response for one request. code is CodeUnset unless
// the caller already decided the status. Any query string is dropped from
// reqPath.
func (r *Response) Init(root, reqPath string, keepAlive bool, code int, post map[string]string) {
	r.UnmapFile()
	r.root = root
	r.path = stripQuery(reqPath)
	r.keepAlive = keepAlive
	r.code = code
	r.post = post
}

// MakeResponse appends the status line, headers and any inline body to buf.
// File content is left in File for a gathered write.
func (r *Response) MakeResponse(ctx context.Context, buf *buffer.Buffer) {
	if r.routes != nil && r.code < 400 {
		if h, ok := r.routes.Lookup(r.path); ok {
			r.makeRouteResponse(ctx, h, buf)
			return
		}
	}

	if r.code < 400 {
		info, err := os.Stat(r.resolve(r.path))
		switch {
		case err != nil || info.IsDir():
			r.code = 404
		case info.Mode().Perm()&0o004 == 0:
			r.code = 403
		case r.code == CodeUnset:
			r.code = 200
		}
	}
	if page, ok := errorPages[r.code]; ok {
		r.path = page
	}

	r.addStateLine(buf)
	r.addHeader(buf, ContentType(r.path))
	r.addContent(buf)
}

func (r *Response) makeRouteResponse(ctx context.Context, h router.Handler, buf *buffer.Buffer) {
	res := h(ctx, r.post)
	r.code = res.Code
	body, err := json.Marshal(res)
	if err != nil {
		r.code = 500
		body = []byte(`{"success":false,"message":"internal error"}`)
	}

	r.addStateLine(buf)
	r.addHeader(buf, MIMEApplicationJSON)
	buf.AppendString("Content-length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
	buf.Append(body)
}

// resolve joins a request path to the root without letting it escape
func stripQuery(reqPath string) string {
	if i := strings.IndexByte(reqPath, '?'); i >= 0 {
		return reqPath[:i]
	}
	return reqPath
}

func (r *Response) resolve(reqPath string) string {
	return filepath.Join(r.root, filepath.FromSlash(path.Clean("/"+reqPath)))
}

func (r *Response) addStateLine(buf *buffer.Buffer) {
	status := StatusText(r.code)
	if status == "" {
		r.code = 400
		status = StatusText(r.code)
	}
	buf.AppendString("HTTP/1.1 " + strconv.Itoa(r.code) + " " + status + "\r\n")
}

func (r *Response) addHeader(buf *buffer.Buffer, contentType string) {
	if r.keepAlive {
		buf.AppendString("Connection: keep-alive\r\n")
		buf.AppendString(keepAliveHint)
	} else {
		buf.AppendString("Connection: close\r\n")
	}
	buf.AppendString("Content-type: " + contentType + "\r\n")
}

func (r *Response) addContent(buf *buffer.Buffer) {
	f, err := os.Open(r.resolve(r.path))
	if err != nil {
		r.ErrorContent(buf, "File NotFound!")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		r.ErrorContent(buf, "File NotFound!")
		return
	}
	size := info.Size()
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
		if err != nil {
			r.ErrorContent(buf, "File NotFound!")
			return
		}
		r.file = data
	}
	buf.AppendString("Content-length: " + strconv.FormatInt(size, 10) + "\r\n\r\n")
}

// ErrorContent appends an inline HTML error body with its length header
func (r *Response) ErrorContent(buf *buffer.Buffer, message string) {
	status := StatusText(r.code)
	if status == "" {
		status = StatusText(400)
	}
	body := fmt.Sprintf(errorBody, r.code, status, message)
	buf.AppendString("Content-length: " + strconv.Itoa(len(body)) + "\r\n\r\n")
	buf.AppendString(body)
}

// UnmapFile releases the file mapping, if any
func (r *Response) UnmapFile() {
	if r.file != nil {
		_ = unix.Munmap(r.file)
		r.file = nil
	}
}

// Code returns the status chosen by MakeResponse
func (r *Response) Code() int { return r.code }

// Path returns the path actually served, after error page re-targeting
func (r *Response) Path() string { return r.path }

// File returns the mapped file body, or nil
func (r *Response) File() []byte { return r.file }

// FileLen returns the length of the mapped file body
func (r *Response) FileLen() int { return len(r.file) }
