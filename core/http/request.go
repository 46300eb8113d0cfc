package http

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/reactor-server/core/buffer"
)

// ParseState is the position of the request state machine
type ParseState int

const (
	StateRequestLine ParseState = iota
	StateHeaders
	StateBody
	StateFinish
)

func (s ParseState) String() string {
	switch s {
	case StateRequestLine:
		return "request-line"
	case StateHeaders:
		return "headers"
	case StateBody:
		return "body"
	case StateFinish:
		return "finish"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

var (
	// ErrIncomplete means the buffer does not yet hold a whole message
	ErrIncomplete = errors.New("http: incomplete request")
	// ErrBadRequestLine means the request line is not METHOD SP PATH SP HTTP/VERSION
	ErrBadRequestLine = errors.New("http: malformed request line")
	// ErrBadContentLength means Content-Length is not a non-negative integer
	ErrBadContentLength = errors.New("http: malformed Content-Length")
)

// DefaultDocument is served for the root path
const DefaultDocument = "/index.html"

// MaxLineSize bounds a single request or header line
const MaxLineSize = 8 << 10

var crlf = []byte("\r\n")

// Request is one parsed HTTP/1.x message
type Request struct {
	state   ParseState
	method  string
	path    string
	version string
	headers map[string]string
	body    []byte
	post    map[string]string
	bodyErr error
}

// NewRequest returns an empty request ready for Parse
func NewRequest() *Request {
	return &Request{
		headers: make(map[string]string, 16),
		post:    make(map[string]string),
		body:    make([]byte, 0, 512),
	}
}

// Reset clears the request for the next message, keeping allocations
func (r *Request) Reset() {
	r.state = StateRequestLine
	r.method = ""
	r.path = ""
	r.version = ""
	clear(r.headers)
	clear(r.post)
	r.body = r.body[:0]
	r.bodyErr = nil
}

// Parse runs the state machine over the readable bytes of buf.
//
// Nothing is consumed unless a whole message is found: on ErrIncomplete
// the buffer is untouched so the caller can append more input and parse
// again from the start. On success exactly the message bytes are retrieved
// and any pipelined bytes behind them stay in buf.
func (r *Request) Parse(buf *buffer.Buffer) error {
	data := buf.Peek()
	if len(data) == 0 {
		return ErrIncomplete
	}
	r.Reset()

	pos := 0
	for r.state != StateFinish {
		switch r.state {
		case StateRequestLine:
			line, next, err := nextLine(data, pos)
			if err != nil {
				return err
			}
			if err := r.parseRequestLine(line); err != nil {
				return err
			}
			pos = next
			r.state = StateHeaders

		case StateHeaders:
			line, next, err := nextLine(data, pos)
			if err != nil {
				return err
			}
			pos = next
			if !r.parseHeader(line) {
				r.state = StateBody
				if bodyless(r.method) {
					if _, ok := r.lookup("Content-Length"); !ok {
						r.state = StateFinish
					}
				}
			}

		case StateBody:
			n, err := r.parseBody(data[pos:])
			if err != nil {
				return err
			}
			pos += n
			r.state = StateFinish
			r.bodyErr = r.decodeBody()
		}
	}

	return buf.RetrieveUntil(pos)
}

// nextLine returns the line starting at pos without its CRLF and the
// offset just past the CRLF.
func nextLine(data []byte, pos int) ([]byte, int, error) {
	end := bytes.Index(data[pos:], crlf)
	if end < 0 {
		if len(data)-pos > MaxLineSize {
			return nil, 0, ErrBadRequestLine
		}
		return nil, 0, ErrIncomplete
	}
	return data[pos : pos+end], pos + end + len(crlf), nil
}

func (r *Request) parseRequestLine(line []byte) error {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return ErrBadRequestLine
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 <= 0 {
		return ErrBadRequestLine
	}
	proto := rest[sp2+1:]
	if !bytes.HasPrefix(proto, []byte("HTTP/")) || bytes.IndexByte(proto, ' ') >= 0 {
		return ErrBadRequestLine
	}

	r.method = string(line[:sp1])
	r.path = string(rest[:sp2])
	r.version = string(proto[len("HTTP/"):])
	if r.path == "/" {
		r.path = DefaultDocument
	}
	return nil
}

// parseHeader stores a NAME: VALUE line. It reports false for any line
// without a colon, which ends the header section. Names are taken as sent,
// spaces included.
func (r *Request) parseHeader(line []byte) bool {
	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return false
	}
	name := line[:colon]
	value := line[colon+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	r.headers[string(name)] = string(value)
	return true
}

// parseBody returns how many bytes of data belong to the body. With a
// Content-Length it waits for that many bytes; otherwise the body runs to
// the next CRLF, or to the end of data. GET and HEAD only get here with a
// Content-Length, and their body is consumed but never decoded.
func (r *Request) parseBody(data []byte) (int, error) {
	if cl, ok := r.lookup("Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return 0, ErrBadContentLength
		}
		if len(data) < n {
			return 0, ErrIncomplete
		}
		r.body = append(r.body[:0], data[:n]...)
		return n, nil
	}

	if end := bytes.Index(data, crlf); end >= 0 {
		r.body = append(r.body[:0], data[:end]...)
		return end + len(crlf), nil
	}
	r.body = append(r.body[:0], data...)
	return len(data), nil
}

func bodyless(method string) bool {
	return method == "GET" || method == "HEAD"
}

// lookup finds a header ignoring the case of its name
func (r *Request) lookup(name string) (string, bool) {
	if v, ok := r.headers[name]; ok {
		return v, true
	}
	for k, v := range r.headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// State returns the state reached by the last Parse
func (r *Request) State() ParseState { return r.state }

func (r *Request) Method() string  { return r.method }
func (r *Request) Path() string    { return r.path }
func (r *Request) Version() string { return r.version }
func (r *Request) Body() []byte    { return r.body }

// Header returns the value of the header named exactly k
func (r *Request) Header(k string) string { return r.headers[k] }

// Headers returns the parsed header map. It is reused by the next Parse.
func (r *Request) Headers() map[string]string { return r.headers }

// Post returns a decoded form or JSON field
func (r *Request) Post(k string) string { return r.post[k] }

// PostForm returns every decoded field. It is reused by the next Parse.
func (r *Request) PostForm() map[string]string { return r.post }

// BodyErr reports why the body could not be decoded, if it could not
func (r *Request) BodyErr() error { return r.bodyErr }

// KeepAlive reports whether the client asked for a persistent HTTP/1.1
// connection.
func (r *Request) KeepAlive() bool {
	if r.version != "1.1" {
		return false
	}
	v, ok := r.lookup("Connection")
	if !ok {
		return false
	}
	return httpguts.HeaderValuesContainsToken([]string{v}, "keep-alive")
}
