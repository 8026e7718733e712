package generation

import "net/http"

// AuthInterceptor is an http.RoundTripper that attaches a bearer token and
// reports 401 responses. It is installed once, when a Client is built.
type AuthInterceptor struct {
	Base           http.RoundTripper
	Token          string
	OnUnauthorized func(req *http.Request)
}

func (a *AuthInterceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	base := a.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if a.Token != "" && req.Header.Get("Authorization") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && a.OnUnauthorized != nil {
		a.OnUnauthorized(req)
	}
	return resp, nil
}
