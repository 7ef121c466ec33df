package transcribe

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/transcribe", h.Transcribe)
}

func (h *Handler) Transcribe(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "No audio file uploaded"})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to read upload"})
	}
	defer src.Close()

	text, err := h.svc.Transcribe(c.Request().Context(), file.Header.Get("Content-Type"), src)
	switch {
	case errors.Is(err, ErrInvalidContentType):
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "File must be audio"})
	case errors.Is(err, ErrFileTooLarge):
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "File exceeds 10MB limit"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Transcription failed"})
	}

	return c.JSON(http.StatusOK, map[string]string{"text": text})
}
