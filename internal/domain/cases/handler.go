package cases

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/cases", h.ListCases)
	api.POST("/cases", h.CreateCase)
	api.GET("/cases/:id", h.GetCase)
	api.DELETE("/cases/:id", h.DeleteCase)
}

func (h *Handler) ListCases(c echo.Context) error {
	items, err := h.svc.ListCases(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to fetch cases"})
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateCase(c echo.Context) error {
	var input CreateCaseInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	cs, err := h.svc.CreateCase(c.Request().Context(), &input)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"message": ve.Message,
				"field":   ve.Field,
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to create case"})
	}
	return c.JSON(http.StatusCreated, cs)
}

func (h *Handler) GetCase(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Case not found"})
	}

	cs, err := h.svc.GetCase(c.Request().Context(), id)
	if errors.Is(err, ErrCaseNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Case not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to fetch case"})
	}
	return c.JSON(http.StatusOK, cs)
}

func (h *Handler) DeleteCase(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Case not found"})
	}

	err = h.svc.DeleteCase(c.Request().Context(), id)
	if errors.Is(err, ErrCaseNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Case not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to delete case"})
	}
	return c.NoContent(http.StatusNoContent)
}
