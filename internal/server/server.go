// Package server exposes the correspondence pipeline over HTTP.
package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"synthcorr/internal/config"
	"synthcorr/internal/export"
	"synthcorr/internal/imageio"
	"synthcorr/internal/pipeline"
	"synthcorr/internal/version"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// CorrespondRequest is the body of POST /correspond.
type CorrespondRequest struct {
	// Images are base64 encoded files, optionally as data URIs.
	Images          []string `json:"images"`
	Correspondences int      `json:"correspondences"`
	Height          int      `json:"height"`
	Width           int      `json:"width"`
}

// CorrespondResponse is returned by POST /correspond.
type CorrespondResponse struct {
	*export.Record
	Elapsed string `json:"elapsed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server owns the Fiber app and the pipeline it drives.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	logger logrus.FieldLogger

	// The augmenter's random source is not safe for concurrent use.
	mu       sync.Mutex
	pipeline *pipeline.Pipeline
}

// New builds the HTTP API. gatherer backs GET /metrics and may be nil.
func New(cfg *config.Config, p *pipeline.Pipeline, gatherer prometheus.Gatherer, logger logrus.FieldLogger) *Server {
	s := &Server{cfg: cfg, pipeline: p, logger: logger}

	s.app = fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(CorrespondResponse{Error: err.Error()})
		},
	})

	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.app.Use(cors.New())

	s.app.Get("/health", s.health)
	s.app.Post("/correspond", s.correspond)
	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.WithField("addr", addr).Info("server starting")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.WithFields(logrus.Fields{
		"method":  c.Method(),
		"path":    c.Path(),
		"status":  c.Response().StatusCode(),
		"elapsed": time.Since(start),
	}).Debug("request")
	return err
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"time":    time.Now(),
		"version": version.Get(),
	})
}

func (s *Server) correspond(c *fiber.Ctx) error {
	start := time.Now()

	var req CorrespondRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if len(req.Images) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "At least one image is required")
	}
	k := req.Correspondences
	if k == 0 {
		k = s.cfg.Pipeline.Correspondences
	}
	if k < 1 || k > s.cfg.Server.MaxCorrespondences {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("correspondences must be within [1, %d]", s.cfg.Server.MaxCorrespondences))
	}
	maxSide := s.cfg.Server.MaxImageSize
	h, w := req.Height, req.Width
	if h < 0 || w < 0 || h > maxSide || w > maxSide {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("height and width must be within [0, %d]", maxSide))
	}
	if h == 0 || w == 0 {
		h, w = s.cfg.Image.Height, s.cfg.Image.Width
	}

	images := make([]image.Image, len(req.Images))
	for i, enc := range req.Images {
		img, err := decodeImage(enc, maxSide)
		if err != nil {
			return err
		}
		images[i] = img
	}
	batch, err := imageio.FromImages(images, h, w)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	res, err := s.pipeline.Run(batch, k)
	s.mu.Unlock()
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	rec, err := export.NewRecord(res, k, nil)
	if err != nil {
		return err
	}
	return c.JSON(CorrespondResponse{
		Record:  &rec,
		Elapsed: time.Since(start).String(),
	})
}

// decodeImage accepts plain base64 or a data URI.
func decodeImage(enc string, maxSide int) (image.Image, error) {
	if strings.HasPrefix(enc, "data:") {
		parts := strings.SplitN(enc, ",", 2)
		if len(parts) != 2 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid base64 image format")
		}
		if !strings.HasPrefix(parts[0], "data:image/") {
			return nil, fiber.NewError(fiber.StatusUnsupportedMediaType, "Unsupported image type")
		}
		enc = parts[1]
	}

	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Failed to decode base64: "+err.Error())
	}
	img, err := imageio.DecodeBounded(bytes.NewReader(raw), maxSide)
	if errors.Is(err, imageio.ErrTooLarge) {
		return nil, fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	}
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	}
	return img, nil
}
