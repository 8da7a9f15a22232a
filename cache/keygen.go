package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// KeyFor builds a stable cache key from an endpoint path and its query
// parameters. Parameter order does not matter: url.Values.Encode sorts by key.
// Empty values are kept so "page=" and a missing page stay distinct.
func KeyFor(endpoint string, params map[string]string) string {
	endpoint = normalizeEndpoint(endpoint)
	if len(params) == 0 {
		return endpoint
	}

	q := make(url.Values, len(params))
	for k, v := range params {
		q.Set(k, v)
	}
	return endpoint + "?" + q.Encode()
}

// Signature identifies a network call for in-flight de-duplication.
// It is METHOD#URL, with a body digest appended when a body is sent so that
// two different payloads to the same URL never share a result.
func Signature(method, rawURL string, body []byte) string {
	sig := strings.ToUpper(method) + "#" + rawURL
	if len(body) == 0 {
		return sig
	}
	sum := sha256.Sum256(body)
	return sig + "#" + hex.EncodeToString(sum[:])
}

// EndpointOf returns the endpoint part of a key built by KeyFor
func EndpointOf(key string) string {
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i]
	}
	return key
}

func normalizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return "/"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint
}
