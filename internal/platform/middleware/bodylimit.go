package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// uploadPaths accept multipart audio and get the larger limit; everything
// else is small JSON.
var uploadPaths = map[string]bool{
	"/api/transcribe": true,
	"/api/audio":      true,
}

// BodyLimit caps request body sizes before handlers buffer them.
// defaultLimit applies to the JSON endpoints; uploadLimit applies to the
// multipart audio uploads (transcribe and audio attachment), which need
// headroom above the 10 MB audio ceiling for the multipart framing.
//
// Limits are human-readable strings: "1M", "512K", "11M". A bare number is
// bytes. Oversized requests get a 413 with the service's {message} error
// shape.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	defaultBytes := parseLimit(defaultLimit)
	uploadBytes := parseLimit(uploadLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if req.Method == http.MethodPost && uploadPaths[req.URL.Path] {
				limit = uploadBytes
			}

			// Content-Length allows rejecting before reading anything.
			if req.ContentLength > limit {
				return payloadTooLarge(c, limit)
			}

			// The reader still enforces the limit when Content-Length is
			// absent or lies.
			req.Body = &cappedReadCloser{ReadCloser: req.Body, remaining: limit}

			return next(c)
		}
	}
}

type cappedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *cappedReadCloser) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	// Read one byte past the remaining budget so overflow is detectable.
	if max := r.remaining + 1; int64(len(p)) > max {
		p = p[:max]
	}

	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	return n, err
}

func payloadTooLarge(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
		"message": fmt.Sprintf("Request body exceeds maximum allowed size of %d bytes", limit),
	})
}

// parseLimit converts "1M", "512K", "2G" or a bare byte count into bytes,
// defaulting to 1 MB on anything unparseable.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 1 << 20
	}

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G") || strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		s = strings.TrimRight(s, "GB")
	case strings.HasSuffix(s, "M") || strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		s = strings.TrimRight(s, "MB")
	case strings.HasSuffix(s, "K") || strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		s = strings.TrimRight(s, "KB")
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 1 << 20
	}

	return n * multiplier
}
