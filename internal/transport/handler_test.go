package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"image-stitcher/internal/config"
	"image-stitcher/internal/correspond"
	apperrors "image-stitcher/internal/errors"
	"image-stitcher/internal/imageio"
	"image-stitcher/internal/stitch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStitcher struct {
	err        error
	lastMethod string
}

func (f *fakeStitcher) Stitch(_ context.Context, a, b image.Image, method string) (*stitch.Result, error) {
	f.lastMethod = method
	if f.err != nil {
		return nil, f.err
	}
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	return &stitch.Result{
		Method:          method,
		Composite:       rgba,
		KeypointsA:      rgba,
		KeypointsB:      rgba,
		Matches:         rgba,
		Correspondences: correspond.Set{},
	}, nil
}

func (f *fakeStitcher) Methods() []string { return []string{"ORB", "SIFT"} }

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(1, 1, color.RGBA{R: 255, A: 255})
	data, err := imageio.EncodePNG(img)
	require.NoError(t, err)
	return data
}

func multipartRequest(t *testing.T, files map[string][]byte, fields map[string]string) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := mw.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/run_pipeline", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	h := NewHandler(&fakeStitcher{}, config.Default().Server, "SIFT")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "available")
}

func TestMethods(t *testing.T) {
	h := NewHandler(&fakeStitcher{}, config.Default().Server, "SIFT")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/methods", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"methods":["ORB","SIFT"]}`, w.Body.String())
}

func TestRunPipeline(t *testing.T) {
	fake := &fakeStitcher{}
	h := NewHandler(fake, config.Default().Server, "SIFT")
	data := pngBytes(t)

	w := httptest.NewRecorder()
	req := multipartRequest(t, map[string][]byte{"img1": data, "img2": data}, map[string]string{"method": "ORB"})
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp PipelineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	for _, uri := range []string{resp.Stitched, resp.Features1, resp.Features2, resp.Matches} {
		assert.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))
	}
	assert.Equal(t, "ORB", fake.lastMethod)
}

func TestRunPipelineDefaultMethod(t *testing.T) {
	fake := &fakeStitcher{}
	h := NewHandler(fake, config.Default().Server, "SIFT")
	data := pngBytes(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, multipartRequest(t, map[string][]byte{"img1": data, "img2": data}, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SIFT", fake.lastMethod)
}

func TestRunPipelineMissingImage(t *testing.T) {
	h := NewHandler(&fakeStitcher{}, config.Default().Server, "SIFT")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, multipartRequest(t, map[string][]byte{"img1": pngBytes(t)}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing images")
}

func TestRunPipelineUndecodableUpload(t *testing.T) {
	h := NewHandler(&fakeStitcher{}, config.Default().Server, "SIFT")
	w := httptest.NewRecorder()
	files := map[string][]byte{"img1": []byte("nope"), "img2": pngBytes(t)}
	h.ServeHTTP(w, multipartRequest(t, files, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "input", resp.Kind)
}

func TestRunPipelineStageErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
		kind string
	}{
		{apperrors.NewMatchError("correspond", "2 correspondences", nil), http.StatusUnprocessableEntity, "match"},
		{apperrors.NewGeometryError("estimate", "degenerate", nil), http.StatusUnprocessableEntity, "geometry"},
		{apperrors.NewCompositingError("composite", "too large", nil), http.StatusUnprocessableEntity, "compositing"},
	}
	data := pngBytes(t)
	for _, tc := range cases {
		h := NewHandler(&fakeStitcher{err: tc.err}, config.Default().Server, "SIFT")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, multipartRequest(t, map[string][]byte{"img1": data, "img2": data}, nil))
		assert.Equal(t, tc.code, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, tc.kind, resp.Kind)
	}
}

func TestRunPipelineOversizedBody(t *testing.T) {
	cfg := config.Default().Server
	cfg.MaxUploadBytes = 64
	h := NewHandler(&fakeStitcher{}, cfg, "SIFT")
	data := pngBytes(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, multipartRequest(t, map[string][]byte{"img1": data, "img2": data}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "input", resp.Kind)
}
