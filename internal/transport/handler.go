// Package transport exposes the stitcher over HTTP.
package transport

import (
	"context"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"time"

	"image-stitcher/internal/config"
	apperrors "image-stitcher/internal/errors"
	"image-stitcher/internal/imageio"
	"image-stitcher/internal/logger"
	"image-stitcher/internal/stitch"
	"image-stitcher/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Stitcher is the pipeline the handler drives.
type Stitcher interface {
	Stitch(ctx context.Context, a, b image.Image, method string) (*stitch.Result, error)
	Methods() []string
}

// PipelineResponse carries the four result views as JPEG data URIs.
type PipelineResponse struct {
	Stitched  string `json:"stitched"`
	Features1 string `json:"features1"`
	Features2 string `json:"features2"`
	Matches   string `json:"matches"`
}

// ErrorResponse is the JSON body of a failed request. Kind names the
// pipeline error class when one applies.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewHandler builds the gin engine.
func NewHandler(s Stitcher, cfg config.Server, defaultMethod string) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxUploadBytes),
	)

	r.GET("/health", healthCheck)
	r.GET("/api/methods", listMethods(s))
	r.POST("/api/run_pipeline", runPipeline(s, cfg, defaultMethod))

	return r
}

func runPipeline(s Stitcher, cfg config.Server, defaultMethod string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
		}

		fh1, err1 := c.FormFile("img1")
		fh2, err2 := c.FormFile("img2")
		if err1 != nil || err2 != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "Missing images", Kind: string(apperrors.KindInput)})
			return
		}
		method := c.DefaultPostForm("method", defaultMethod)

		a, err := decodeUpload(fh1)
		if err != nil {
			respondError(c, err)
			return
		}
		b, err := decodeUpload(fh2)
		if err != nil {
			respondError(c, err)
			return
		}

		res, err := s.Stitch(ctx, a, b, method)
		if err != nil {
			respondError(c, err)
			return
		}

		var out PipelineResponse
		views := []struct {
			dst *string
			img image.Image
		}{
			{&out.Stitched, res.Composite},
			{&out.Features1, res.KeypointsA},
			{&out.Features2, res.KeypointsB},
			{&out.Matches, res.Matches},
		}
		for _, v := range views {
			uri, err := imageio.JPEGDataURI(v.img, cfg.JPEGQuality)
			if err != nil {
				respondError(c, err)
				return
			}
			*v.dst = uri
		}

		fields := logrus.Fields{
			"method":             res.Method,
			"correspondences":    res.Correspondences.Len(),
			"processing_time_ms": res.Timings.Total.Milliseconds(),
		}
		if res.Homography != nil {
			fields["inliers"] = res.Homography.InlierCount
		}
		logger.WithFields(fields).Info("pipeline request completed")

		c.JSON(http.StatusOK, out)
	}
}

func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.NewInputError("load", fmt.Sprintf("cannot open upload %s", fh.Filename), err)
	}
	defer f.Close()
	return imageio.Decode(f, fh.Filename)
}

func listMethods(s Stitcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"methods": s.Methods()})
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": version.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// requestSizeLimiter caps the request body at maxBytes. Zero disables the cap.
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"ip":       c.ClientIP(),
			"duration": time.Since(start).String(),
		}).Debug("request served")
	}
}

func respondError(c *gin.Context, err error) {
	code := apperrors.StatusCode(err)
	resp := ErrorResponse{Error: err.Error()}
	if kind, ok := apperrors.KindOf(err); ok {
		resp.Kind = string(kind)
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	c.AbortWithStatusJSON(code, resp)
}
