package presigned

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSignAndValidateRequest(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := New(WithSecretKey("test-secret"), WithBaseURL("http://localhost:8080"), WithClock(fixedClock(now)))

	signed, err := s.Sign("GET", "/files/videos/a.mp4", nil, time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", u.Host)
	assert.Equal(t, "1700003600", u.Query().Get("expires"))

	req := httptest.NewRequest(http.MethodGet, signed, nil)
	assert.NoError(t, s.ValidateRequest(req))

	// Method is part of the signature
	req = httptest.NewRequest(http.MethodDelete, signed, nil)
	assert.ErrorIs(t, s.ValidateRequest(req), ErrInvalidSignature)

	// Path is part of the signature
	tampered := *u
	tampered.Path = "/files/videos/b.mp4"
	req = httptest.NewRequest(http.MethodGet, tampered.String(), nil)
	assert.ErrorIs(t, s.ValidateRequest(req), ErrInvalidSignature)
}

func TestSignedHeadersMustMatch(t *testing.T) {
	s := New(WithSecretKey("test-secret"))
	headers := map[string]string{"Content-Type": "video/mp4", "X-Amz-Meta-Secret-Key": "abc"}
	signed, err := s.Sign("PUT", "/files/k.mp4", headers, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, signed, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	assert.NoError(t, s.ValidateRequest(req))

	req.Header.Set("X-Amz-Meta-Secret-Key", "forged")
	assert.ErrorIs(t, s.ValidateRequest(req), ErrInvalidSignature)
}

func TestValidateExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := New(WithSecretKey("k"), WithClock(fixedClock(now)))
	signed, err := s.Sign("GET", "/files/a", nil, time.Second)
	require.NoError(t, err)

	later := New(WithSecretKey("k"), WithClock(fixedClock(now.Add(time.Minute))))
	req := httptest.NewRequest(http.MethodGet, signed, nil)
	assert.ErrorIs(t, later.ValidateRequest(req), ErrExpired)
	assert.True(t, IsAuthError(later.ValidateRequest(req)))
}

func TestValidateMissingParams(t *testing.T) {
	s := New(WithSecretKey("k"))
	req := httptest.NewRequest(http.MethodGet, "/files/a", nil)
	assert.ErrorIs(t, s.ValidateRequest(req), ErrMissingSignature)

	req = httptest.NewRequest(http.MethodGet, "/files/a?signature=abc&expires=soon", nil)
	assert.ErrorIs(t, s.ValidateRequest(req), ErrInvalidExpiration)
}

func TestSignWithoutSecret(t *testing.T) {
	_, err := New().Sign("GET", "/files/a", nil, 0)
	assert.ErrorIs(t, err, ErrNoSecretKey)
}

func TestValidateMatchesSign(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := New(WithSecretKey("k"), WithClock(fixedClock(now)))
	headers := map[string]string{"Content-Type": "video/mp4"}
	signed, err := s.Sign("put", "/files/a", headers, time.Minute)
	require.NoError(t, err)
	u, _ := url.Parse(signed)

	assert.NoError(t, s.Validate("PUT", "/files/a", map[string]string{"content-type": "video/mp4"}, u.Query().Get("signature"), now.Add(time.Minute).Unix()))
}
