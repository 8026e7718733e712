// Package presigned issues and verifies HMAC-signed URLs for backends that
// have no native presigning, such as the local filesystem store.
package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoSecretKey       = errors.New("presigned: signer has no secret")
	ErrMissingSignature  = errors.New("presigned: url is not signed")
	ErrInvalidExpiration = errors.New("presigned: malformed expiry")
	ErrExpired           = errors.New("presigned: url expired")
	ErrInvalidSignature  = errors.New("presigned: signature mismatch")
)

// IsAuthError reports whether err came from validating a request, as opposed
// to a misconfigured signer.
func IsAuthError(err error) bool {
	for _, target := range []error{ErrMissingSignature, ErrInvalidExpiration, ErrExpired, ErrInvalidSignature} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

const (
	paramSignature = "signature"
	paramExpires   = "expires"
	paramHeaders   = "headers"
)

// Signer generates and validates HMAC-signed URLs. Besides method, path and
// expiry, a signature can cover request headers; the client must then send
// exactly those header values.
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	baseURL           string
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: time.Hour,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsEnabled returns true if a secret key is configured
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// Sign returns a URL for method on path, valid for expiresIn. Every entry of
// headers is bound into the signature.
//
// Example:
//
//	u, err := signer.Sign("PUT", "/files/videos/a.mp4", map[string]string{"Content-Type": "video/mp4"}, time.Hour)
//	// http://localhost:8080/files/videos/a.mp4?expires=1696789012&headers=content-type&signature=ab12...
func (s *Signer) Sign(method, path string, headers map[string]string, expiresIn time.Duration) (string, error) {
	if !s.IsEnabled() {
		return "", ErrNoSecretKey
	}
	if expiresIn <= 0 {
		expiresIn = s.defaultExpiration
	}
	expiresAt := s.now().Add(expiresIn).Unix()

	names := headerNames(headers)
	canonical := make(map[string]string, len(headers))
	for k, v := range headers {
		canonical[strings.ToLower(k)] = v
	}

	q := url.Values{}
	q.Set(paramExpires, strconv.FormatInt(expiresAt, 10))
	if len(names) > 0 {
		q.Set(paramHeaders, strings.Join(names, ";"))
	}
	q.Set(paramSignature, s.signature(method, path, names, canonical, expiresAt))

	return s.baseURL + path + "?" + q.Encode(), nil
}

// ValidateRequest checks the signature, expiry, and signed headers of r
func (s *Signer) ValidateRequest(r *http.Request) error {
	if !s.IsEnabled() {
		return ErrNoSecretKey
	}
	q := r.URL.Query()
	signature := q.Get(paramSignature)
	if signature == "" {
		return ErrMissingSignature
	}
	expiresAt, err := strconv.ParseInt(q.Get(paramExpires), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	names := SignedHeaders(r)
	values := make(map[string]string, len(names))
	for _, name := range names {
		values[name] = r.Header.Get(name)
	}
	return s.validate(r.Method, r.URL.Path, names, values, signature, expiresAt)
}

// SignedHeaders returns the lower-cased header names a request URL claims
// are covered by its signature. Only meaningful after ValidateRequest
// succeeds.
func SignedHeaders(r *http.Request) []string {
	h := r.URL.Query().Get(paramHeaders)
	if h == "" {
		return nil
	}
	return strings.Split(h, ";")
}

// Validate checks a signature produced by Sign
func (s *Signer) Validate(method, path string, headers map[string]string, signature string, expiresAt int64) error {
	canonical := make(map[string]string, len(headers))
	for k, v := range headers {
		canonical[strings.ToLower(k)] = v
	}
	return s.validate(method, path, headerNames(headers), canonical, signature, expiresAt)
}

func (s *Signer) validate(method, path string, names []string, values map[string]string, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}
	expected := s.signature(method, path, names, values, expiresAt)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// signature computes HMAC-SHA256 over METHOD|PATH|EXPIRES followed by one
// "name:value" line per signed header, in the given order.
func (s *Signer) signature(method, path string, names []string, values map[string]string, expiresAt int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%d", strings.ToUpper(method), path, expiresAt)
	for _, name := range names {
		fmt.Fprintf(&b, "\n%s:%s", name, strings.TrimSpace(values[name]))
	}
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(b.String()))
	return hex.EncodeToString(h.Sum(nil))
}

func headerNames(headers map[string]string) []string {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, strings.ToLower(k))
	}
	sort.Strings(names)
	return names
}
