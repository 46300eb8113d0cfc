package http

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Media types understood by the body decoder
const (
	MIMEApplicationJSON = "application/json"
	MIMEApplicationForm = "application/x-www-form-urlencoded"
	MIMEMultipartForm   = "multipart/form-data"
)

// decodeBody fills post from the body according to Content-Type. A body
// that cannot be decoded leaves post empty and is reported, not fatal.
func (r *Request) decodeBody() error {
	if r.method != "POST" || len(r.body) == 0 {
		return nil
	}
	ct, _ := r.lookup("Content-Type")
	switch mediaType(ct) {
	case MIMEApplicationJSON:
		return decodeJSON(r.body, r.post)
	case MIMEApplicationForm:
		decodeForm(r.body, r.post)
		return nil
	case MIMEMultipartForm:
		return nil
	case "":
		return nil
	default:
		return fmt.Errorf("http: unsupported body type %q", ct)
	}
}

// mediaType strips parameters and lowercases a Content-Type value
func mediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// decodeJSON keeps the string-valued members of a JSON object
func decodeJSON(body []byte, post map[string]string) error {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("http: decode json body: %w", err)
	}
	for k, v := range obj {
		if s, ok := v.(string); ok {
			post[k] = s
		}
	}
	return nil
}

// decodeForm splits an urlencoded body on & and =. Pairs without a key are
// skipped; a key without = maps to the empty string.
func decodeForm(body []byte, post map[string]string) {
	for len(body) > 0 {
		var pair []byte
		if i := bytes.IndexByte(body, '&'); i >= 0 {
			pair, body = body[:i], body[i+1:]
		} else {
			pair, body = body, nil
		}
		if len(pair) == 0 {
			continue
		}
		key, value := pair, []byte(nil)
		if i := bytes.IndexByte(pair, '='); i >= 0 {
			key, value = pair[:i], pair[i+1:]
		}
		if len(key) == 0 {
			continue
		}
		post[Unescape(key)] = Unescape(value)
	}
}

// Unescape decodes %XY sequences and turns + into a space. A % not followed
// by two hex digits is kept as is.
func Unescape(s []byte) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			sb.WriteByte(' ')
		case '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				sb.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
				i += 2
				continue
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
