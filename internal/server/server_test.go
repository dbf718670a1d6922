package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"synthcorr/internal/augment"
	"synthcorr/internal/config"
	"synthcorr/internal/logging"
	"synthcorr/internal/metrics"
	"synthcorr/internal/pipeline"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.Seed = 7
	reg := prometheus.NewRegistry()
	logger := logging.Discard()

	p, err := pipeline.FromConfig(cfg, pipeline.WithLogger(logger), pipeline.WithMetrics(metrics.New(reg)))
	require.NoError(t, err)
	return New(cfg, p, reg, logger)
}

func encodedPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func post(t *testing.T, s *Server, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/correspond", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "version")
}

func TestCorrespond(t *testing.T) {
	s := newTestServer(t)
	img := encodedPNG(t, 16, 16)

	resp := post(t, s, CorrespondRequest{
		Images:          []string{img, "data:image/png;base64," + img},
		Correspondences: 5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out CorrespondResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Record)
	assert.Empty(t, out.Error)
	assert.Equal(t, 5, out.K)
	assert.Equal(t, 16, out.Height)
	assert.Contains(t, []augment.Kind{augment.KindAffine, augment.KindPerspective}, out.Transform.Kind)
	require.Len(t, out.Sets, 2)
	for _, set := range out.Sets {
		if set.Empty() {
			continue
		}
		assert.Len(t, set.Source, 5)
		assert.Len(t, set.Destination, 5)
	}

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	metricsBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), "synthcorr_runs_total")
}

func TestCorrespondResizes(t *testing.T) {
	s := newTestServer(t)
	resp := post(t, s, CorrespondRequest{
		Images:          []string{encodedPNG(t, 16, 12), encodedPNG(t, 10, 10)},
		Correspondences: 2,
		Height:          8,
		Width:           9,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out CorrespondResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Record)
	assert.Equal(t, 8, out.Height)
	assert.Equal(t, 9, out.Width)
}

func TestCorrespondErrors(t *testing.T) {
	s := newTestServer(t)
	img := encodedPNG(t, 8, 8)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"no images", CorrespondRequest{Correspondences: 3}, http.StatusBadRequest},
		{"negative count", CorrespondRequest{Images: []string{img}, Correspondences: -1}, http.StatusBadRequest},
		{"bad base64", CorrespondRequest{Images: []string{"%%%"}}, http.StatusBadRequest},
		{"not an image type", CorrespondRequest{Images: []string{"data:text/plain;base64,aGVsbG8="}}, http.StatusUnsupportedMediaType},
		{"undecodable", CorrespondRequest{Images: []string{base64.StdEncoding.EncodeToString([]byte("hello"))}}, http.StatusUnsupportedMediaType},
		{"huge count", CorrespondRequest{Images: []string{img}, Correspondences: 1 << 62}, http.StatusBadRequest},
		{"count above limit", CorrespondRequest{Images: []string{img}, Correspondences: 4097}, http.StatusBadRequest},
		{"huge height", CorrespondRequest{Images: []string{img}, Height: 1 << 30, Width: 8}, http.StatusBadRequest},
		{"negative width", CorrespondRequest{Images: []string{img}, Height: 8, Width: -1}, http.StatusBadRequest},
		{"image above limit", CorrespondRequest{Images: []string{encodedPNG(t, 4097, 1)}}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, s, tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)

			var out CorrespondResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.NotEmpty(t, out.Error)
			assert.Nil(t, out.Record)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/correspond", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPanicsAreRecovered(t *testing.T) {
	s := newTestServer(t)
	s.App().Get("/crash", func(c *fiber.Ctx) error {
		panic("handler crashed")
	})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/crash", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
