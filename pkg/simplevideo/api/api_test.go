package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-video/pkg/simplevideo"
	"github.com/tendant/simple-video/pkg/simplevideo/api"
	memoryrepo "github.com/tendant/simple-video/pkg/simplevideo/repo/memory"
	fsstorage "github.com/tendant/simple-video/pkg/simplevideo/storage/fs"
	memorystorage "github.com/tendant/simple-video/pkg/simplevideo/storage/memory"
)

const (
	jwtSecret     = "jwt-test-secret"
	signingSecret = "callback-secret"
	videoBody     = "fake-mp4-bytes"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testAPI struct {
	server *httptest.Server
	svc    simplevideo.Service
	owners *api.OwnerResolver
	source *httptest.Server
}

func newSource(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte(videoBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newTestAPI serves the API over httptest. With useFS the service stores
// objects on disk and the files route is mounted.
func newTestAPI(t *testing.T, useFS bool) *testAPI {
	t.Helper()

	var handler http.Handler
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	var (
		store simplevideo.BlobStore = memorystorage.New()
		files *fsstorage.Backend
	)
	if useFS {
		var err error
		files, err = fsstorage.New(fsstorage.Config{
			BaseDir:   t.TempDir(),
			BaseURL:   server.URL,
			SecretKey: "fs-signing-secret",
		})
		require.NoError(t, err)
		store = files
	}

	svc, err := simplevideo.New(
		simplevideo.WithRepository(memoryrepo.New()),
		simplevideo.WithBlobStore("default", store),
		simplevideo.WithLogger(quietLogger),
	)
	require.NoError(t, err)

	owners := api.NewOwnerResolver(jwtSecret)
	r := chi.NewRouter()
	api.Register(r, api.RouterConfig{
		Service:              svc,
		Owners:               owners,
		Logger:               quietLogger,
		Files:                files,
		WebhookSigningSecret: signingSecret,
		CORSAllowedOrigins:   []string{"https://app.example.com"},
	})
	handler = r

	return &testAPI{server: server, svc: svc, owners: owners, source: newSource(t)}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (a *testAPI) createVideo(t *testing.T, email, name string) map[string]interface{} {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/videos", map[string]string{
		"videoUrl": a.source.URL + "/clips/" + name,
		"email":    email,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func decodeError(t *testing.T, body []byte) api.ErrorDetail {
	t.Helper()
	var e api.ErrorBody
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Error
}

func TestCreateVideo(t *testing.T) {
	a := newTestAPI(t, false)

	out := a.createVideo(t, "Agent@Example.com", "Sunny_Loft.mp4")
	assert.Equal(t, "Sunny Loft", out["title"])
	assert.Equal(t, "ready", out["status"])
	assert.Equal(t, "agent@example.com", out["owner"])
	assert.NotContains(t, out, "secretKey")
	assert.EqualValues(t, len(videoBody), out["size"])
}

func TestCreateVideoErrors(t *testing.T) {
	a := newTestAPI(t, false)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"missing email", map[string]string{"videoUrl": a.source.URL + "/a.mp4"}, http.StatusBadRequest, "validation_error"},
		{"bad email", map[string]string{"videoUrl": a.source.URL + "/a.mp4", "email": "nope"}, http.StatusBadRequest, "validation_error"},
		{"missing url", map[string]string{"email": "a@b.co"}, http.StatusBadRequest, "validation_error"},
		{"upstream 404", map[string]string{"videoUrl": a.source.URL + "/missing.mp4", "email": "a@b.co"}, http.StatusBadGateway, "upstream_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := a.do(t, http.MethodPost, "/videos", tt.body, nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, body).Code)
		})
	}

	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/videos", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGalleryAndOwnership(t *testing.T) {
	a := newTestAPI(t, false)
	mine := a.createVideo(t, "agent@example.com", "one.mp4")
	a.createVideo(t, "agent@example.com", "two.mp4")
	a.createVideo(t, "other@example.com", "three.mp4")

	resp, body := a.do(t, http.MethodGet, "/videos?email=agent@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gallery struct {
		Videos []struct {
			VideoID     string  `json:"videoId"`
			DownloadURL *string `json:"downloadUrl"`
		} `json:"videos"`
		TotalCount int `json:"totalCount"`
		ReadyCount int `json:"readyCount"`
	}
	require.NoError(t, json.Unmarshal(body, &gallery))
	assert.Equal(t, 2, gallery.TotalCount)
	assert.Equal(t, 2, gallery.ReadyCount)
	for _, v := range gallery.Videos {
		assert.NotNil(t, v.DownloadURL)
	}

	resp, body = a.do(t, http.MethodGet, "/videos?email=nobody@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"videos":[]`)

	id := mine["videoId"].(string)
	resp, _ = a.do(t, http.MethodGet, "/videos/"+id+"?email=other@example.com", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/videos/"+id+"/download?email=agent@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dl map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &dl))
	assert.NotEmpty(t, dl["downloadUrl"])
	assert.EqualValues(t, 3600, dl["expiresIn"])
}

func TestJWTOwnerTakesPrecedence(t *testing.T) {
	a := newTestAPI(t, false)

	_, token, err := a.owners.Auth().Encode(map[string]interface{}{"sub": "user-42"})
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	resp, body := a.do(t, http.MethodPost, "/videos", map[string]string{
		"videoUrl": a.source.URL + "/clips/tour.mp4",
		"email":    "spoof@example.com",
	}, auth)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "user-42", out["owner"])

	resp, _ = a.do(t, http.MethodGet, "/videos?email=spoof@example.com", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/videos", nil, auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"totalCount":1`)
}

func TestUpdateAndDelete(t *testing.T) {
	a := newTestAPI(t, false)
	id := a.createVideo(t, "agent@example.com", "tour.mp4")["videoId"].(string)

	resp, body := a.do(t, http.MethodPatch, "/videos/"+id, map[string]interface{}{
		"email":    "agent@example.com",
		"title":    "Harbor View",
		"metadata": map[string]interface{}{"mls": "A123"},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "Harbor View", out["title"])
	assert.Equal(t, "A123", out["metadata"].(map[string]interface{})["mls"])

	resp, _ = a.do(t, http.MethodPatch, "/videos/"+id, map[string]interface{}{"email": "agent@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.do(t, http.MethodDelete, "/videos/"+id+"?email=other@example.com", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = a.do(t, http.MethodDelete, "/videos/"+id+"?email=agent@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"storageDeleted":true`)

	resp, _ = a.do(t, http.MethodGet, "/videos/"+id+"?email=agent@example.com", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookStatusCallback(t *testing.T) {
	a := newTestAPI(t, false)

	resp, body := a.do(t, http.MethodPost, "/videos/uploads", map[string]string{
		"email":    "agent@example.com",
		"filename": "walkthrough.mp4",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var upload struct {
		Video struct {
			VideoID string `json:"videoId"`
			Status  string `json:"status"`
		} `json:"video"`
	}
	require.NoError(t, json.Unmarshal(body, &upload))
	id := upload.Video.VideoID
	assert.Equal(t, "processing", upload.Video.Status)

	resp, _ = a.do(t, http.MethodGet, "/videos/"+id+"/download?email=agent@example.com", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	callback := []byte(`{"videoId":"` + id + `","status":"completed","error":{"message":"render timeout"}}`)

	resp, _ = a.do(t, http.MethodPost, "/webhooks/generation", json.RawMessage(callback), map[string]string{api.SignatureHeader: "sha256=deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = a.do(t, http.MethodPost, "/webhooks/generation", json.RawMessage(callback), map[string]string{
		api.SignatureHeader: "sha256=" + api.SignBody(signingSecret, callback),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"status":"failed"`)

	unknown := []byte(`{"videoId":"video_0_missing","status":"ready"}`)
	resp, _ = a.do(t, http.MethodPost, "/webhooks/generation", json.RawMessage(unknown), map[string]string{
		api.SignatureHeader: api.SignBody(signingSecret, unknown),
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFilesRouteRoundTrip(t *testing.T) {
	a := newTestAPI(t, true)

	resp, body := a.do(t, http.MethodPost, "/videos/uploads", map[string]string{
		"email":       "agent@example.com",
		"filename":    "tour.mp4",
		"contentType": "video/mp4",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var result struct {
		Video struct {
			VideoID string `json:"videoId"`
		} `json:"video"`
		Upload struct {
			UploadURL string            `json:"uploadUrl"`
			Method    string            `json:"method"`
			Headers   map[string]string `json:"headers"`
		} `json:"upload"`
	}
	require.NoError(t, json.Unmarshal(body, &result))

	put := func(headers map[string]string) int {
		req, err := http.NewRequest(result.Upload.Method, result.Upload.UploadURL, strings.NewReader(videoBody))
		require.NoError(t, err)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	forged := map[string]string{}
	for k, v := range result.Upload.Headers {
		forged[k] = v
	}
	forged[fsstorage.MetadataHeaderPrefix+simplevideo.MetaSecretKey] = "attacker"
	assert.Equal(t, http.StatusForbidden, put(forged))
	assert.Equal(t, http.StatusOK, put(result.Upload.Headers))

	callback := []byte(`{"videoId":"` + result.Video.VideoID + `","status":"ready"}`)
	resp, _ = a.do(t, http.MethodPost, "/webhooks/generation", json.RawMessage(callback), map[string]string{
		api.SignatureHeader: api.SignBody(signingSecret, callback),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = a.do(t, http.MethodGet, "/videos/"+result.Video.VideoID+"/download?email=agent@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var dl struct {
		URL string `json:"downloadUrl"`
	}
	require.NoError(t, json.Unmarshal(body, &dl))

	get, err := http.Get(dl.URL)
	require.NoError(t, err)
	data, _ := io.ReadAll(get.Body)
	get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, videoBody, string(data))

	tampered, err := http.Get(strings.Replace(dl.URL, "signature=", "signature=0", 1))
	require.NoError(t, err)
	tampered.Body.Close()
	assert.Equal(t, http.StatusForbidden, tampered.StatusCode)
}

func newFilesRouter(t *testing.T, opts ...api.FilesOption) (*fsstorage.Backend, http.Handler) {
	t.Helper()
	files, err := fsstorage.New(fsstorage.Config{
		BaseDir:   t.TempDir(),
		BaseURL:   "http://files.test",
		SecretKey: "fs-signing-secret",
	})
	require.NoError(t, err)
	r := chi.NewRouter()
	api.NewFilesHandler(files, quietLogger, opts...).Mount(r)
	return files, r
}

func TestFilesUploadKeepsOnlySignedMetadata(t *testing.T) {
	files, router := newFilesRouter(t)
	ctx := context.Background()

	signed, err := files.GetUploadURL(ctx, simplevideo.UploadURLParams{
		Key:         "videos/u1/v1/tour.mp4",
		ContentType: "video/mp4",
		Metadata:    map[string]string{simplevideo.MetaVideoID: "v1"},
		TTL:         time.Minute,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(signed.Method, signed.URL, strings.NewReader(videoBody))
	for k, v := range signed.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(fsstorage.MetadataHeaderPrefix+simplevideo.MetaOwner, "user:attacker")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	meta, err := files.GetObjectMeta(ctx, "videos/u1/v1/tour.mp4")
	require.NoError(t, err)
	assert.Equal(t, "v1", meta.Metadata[simplevideo.MetaVideoID])
	assert.NotContains(t, meta.Metadata, simplevideo.MetaOwner)
}

func TestFilesUploadRejectsOversizedBody(t *testing.T) {
	files, router := newFilesRouter(t, api.WithMaxUploadBytes(int64(len(videoBody))))
	ctx := context.Background()

	signed, err := files.GetUploadURL(ctx, simplevideo.UploadURLParams{Key: "videos/u1/v2/tour.mp4", TTL: time.Minute})
	require.NoError(t, err)
	oversized := videoBody + videoBody

	tests := []struct {
		name string
		body io.Reader
	}{
		{"declared length", strings.NewReader(oversized)},
		{"unknown length", io.MultiReader(strings.NewReader(oversized))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(signed.Method, signed.URL, tt.body)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		})
	}

	_, err = files.GetObjectMeta(ctx, "videos/u1/v2/tour.mp4")
	assert.ErrorIs(t, err, simplevideo.ErrObjectNotFound)

	req := httptest.NewRequest(signed.Method, signed.URL, strings.NewReader(videoBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
