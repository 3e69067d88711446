package calendar

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Path is the endpoint under test.
const Path = "/calendar"

const (
	HeaderAppVersion = "X-App-Version"
	acceptJSON       = "application/json"
)

var errMalformedComponent = errors.New("malformed URI component")

// BuildURL joins the base URL and the calendar path and appends the
// year/month query. Trailing slashes of base are dropped so the result never
// holds a double slash between base and path.
func BuildURL(base, year, month string) string {
	target := strings.TrimRight(base, "/")
	return fmt.Sprintf("%s%s?year=%s&month=%s", target, Path, enc(year), enc(month))
}

// Headers returns the request headers sent with every calendar call.
func Headers(authorization string, version AppVersion) http.Header {
	h := make(http.Header, 3)
	h.Set("Authorization", authorization)
	// The server defaults to V1; the tag is always sent explicitly.
	h.Set(HeaderAppVersion, string(version))
	h.Set("Accept", acceptJSON)
	return h
}

// enc percent-encodes v, falling back to the raw value when v cannot be
// encoded.
func enc(v string) string {
	encoded, err := EncodeComponent(v)
	if err != nil {
		return v
	}
	return encoded
}

// EncodeComponent percent-encodes every byte outside the unreserved set
// A-Z a-z 0-9 - _ . ! ~ * ' ( ). Strings that are not valid UTF-8 are
// rejected.
func EncodeComponent(v string) (string, error) {
	if !utf8.ValidString(v) {
		return "", fmt.Errorf("%w: %q", errMalformedComponent, v)
	}

	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String(), nil
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
