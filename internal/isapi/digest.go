package isapi

import (
	"crypto/md5" //nolint:gosec // RFC 2617 digest auth is defined over MD5
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// digestNC is the nonce count. Each challenge is answered exactly once.
const digestNC = "00000001"

// ErrNoDigestChallenge is returned when a 401 carries no usable Digest challenge.
var ErrNoDigestChallenge = errors.New("isapi: no digest challenge")

// Challenge is a parsed WWW-Authenticate: Digest header.
type Challenge struct {
	Realm     string
	Nonce     string
	QOP       string // "auth" or empty for the legacy RFC 2069 form
	Opaque    string
	Algorithm string
}

// ChallengeFromResponse returns the first Digest challenge in the response headers.
func ChallengeFromResponse(h http.Header) (*Challenge, error) {
	for _, v := range h.Values("WWW-Authenticate") {
		if c, err := ParseChallenge(v); err == nil {
			return c, nil
		}
	}
	return nil, ErrNoDigestChallenge
}

// ParseChallenge parses a single `Digest k="v", ...` header value.
func ParseChallenge(header string) (*Challenge, error) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Digest") {
		return nil, ErrNoDigestChallenge
	}

	params := ParseAuthParams(rest)
	c := &Challenge{
		Realm:     params["realm"],
		Nonce:     params["nonce"],
		Opaque:    params["opaque"],
		Algorithm: params["algorithm"],
	}
	if c.Nonce == "" {
		return nil, fmt.Errorf("%w: missing nonce", ErrNoDigestChallenge)
	}
	if c.Algorithm != "" && !strings.EqualFold(c.Algorithm, "MD5") {
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrNoDigestChallenge, c.Algorithm)
	}

	// qop may list several options; only auth is supported.
	for _, q := range strings.Split(params["qop"], ",") {
		if strings.TrimSpace(q) == "auth" {
			c.QOP = "auth"
			break
		}
	}
	return c, nil
}

// ParseAuthParams splits a comma separated list of k=v or k="v" pairs.
// Quoted values may contain commas.
func ParseAuthParams(s string) map[string]string {
	params := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ,\t")
		key, rest, ok := strings.Cut(s, "=")
		if !ok {
			break
		}
		key = strings.ToLower(strings.TrimSpace(key))
		rest = strings.TrimLeft(rest, " ")

		var val string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				val, s = rest[1:], ""
			} else {
				val, s = rest[1:end+1], rest[end+2:]
			}
		} else {
			val, s, _ = strings.Cut(rest, ",")
			val = strings.TrimSpace(val)
		}
		params[key] = val
	}
	return params
}

// DigestResponse computes the response field:
//
//	HA1 = MD5(username:realm:password)
//	HA2 = MD5(method:uri)
//	response = MD5(HA1:nonce:nc:cnonce:qop:HA2), or MD5(HA1:nonce:HA2) without qop
func DigestResponse(username, password, realm, method, uri, nonce, nc, cnonce, qop string) string {
	ha1 := md5Hex(username + ":" + realm + ":" + password)
	ha2 := md5Hex(method + ":" + uri)
	if qop == "" {
		return md5Hex(ha1 + ":" + nonce + ":" + ha2)
	}
	return md5Hex(ha1 + ":" + nonce + ":" + nc + ":" + cnonce + ":" + qop + ":" + ha2)
}

// Authorization builds the Authorization header answering c.
func (c *Challenge) Authorization(username, password, method, uri, cnonce string) string {
	resp := DigestResponse(username, password, c.Realm, method, uri, c.Nonce, digestNC, cnonce, c.QOP)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, username, c.Realm, c.Nonce, uri)
	if c.Algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, c.Algorithm)
	}
	if c.QOP != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s"`, c.QOP, digestNC, cnonce)
	}
	fmt.Fprintf(&b, `, response="%s"`, resp)
	if c.Opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.Opaque)
	}
	return b.String()
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

func randomCNonce() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
