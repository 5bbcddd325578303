// Package remote reaches a learned dense matcher (LoFTR and similar)
// running as an HTTP inference service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"image-stitcher/internal/correspond"
	"image-stitcher/internal/imageio"
	"image-stitcher/internal/logger"
	"image-stitcher/internal/provider"
	"image-stitcher/pkg/geometry"

	"github.com/sirupsen/logrus"
)

// MethodName is the registry key of the dense matcher.
const MethodName = "LoFTR"

// maxResponseBytes bounds the JSON reply read from the service.
const maxResponseBytes = 64 << 20

// Client posts image pairs to the inference service.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates a client for the service at baseURL. The match
// endpoint is baseURL + "/match".
func NewClient(baseURL string, timeout time.Duration) *Client {
	transport := &http.Transport{
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/match",
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Register adds the dense method to the registry. The client is wrapped in
// provider.Serialized since one inference service handles one pair at a
// time.
func Register(reg *provider.Registry, c *Client, filter correspond.FilterOptions) {
	reg.RegisterMethod(provider.NewDenseMethod(MethodName, provider.NewSerialized(c), filter))
}

// matchResponse is the service reply. keypoints0[i] in the first image
// corresponds to keypoints1[i] in the second.
type matchResponse struct {
	Keypoints0 [][2]float64 `json:"keypoints0"`
	Keypoints1 [][2]float64 `json:"keypoints1"`
	Confidence []float64    `json:"confidence"`
}

// Match implements provider.DenseMatcher. a is the primary image.
func (c *Client) Match(ctx context.Context, a, b image.Image) ([]correspond.Correspondence, error) {
	body, contentType, err := encodePair(a, b)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dense matcher request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("dense matcher returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out matchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode dense matcher reply: %w", err)
	}
	if len(out.Keypoints0) != len(out.Keypoints1) {
		return nil, fmt.Errorf("dense matcher returned %d and %d keypoints", len(out.Keypoints0), len(out.Keypoints1))
	}

	pairs := make([]correspond.Correspondence, len(out.Keypoints0))
	for i := range pairs {
		pairs[i] = correspond.Correspondence{
			A: geometry.Point2D{X: out.Keypoints0[i][0], Y: out.Keypoints0[i][1]},
			B: geometry.Point2D{X: out.Keypoints1[i][0], Y: out.Keypoints1[i][1]},
		}
		if i < len(out.Confidence) {
			pairs[i].Distance = 1 - out.Confidence[i]
		}
	}

	logger.WithFields(logrus.Fields{
		"stage":    "correspond",
		"method":   MethodName,
		"pairs":    len(pairs),
		"duration": time.Since(start).String(),
	}).Debug("dense matcher replied")

	return pairs, nil
}

// encodePair writes both images as PNG parts image0 and image1.
func encodePair(a, b image.Image) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, img := range []image.Image{a, b} {
		data, err := imageio.EncodePNG(img)
		if err != nil {
			return nil, "", err
		}
		field := fmt.Sprintf("image%d", i)
		part, err := mw.CreateFormFile(field, field+".png")
		if err != nil {
			return nil, "", fmt.Errorf("create form part: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", fmt.Errorf("write form part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
