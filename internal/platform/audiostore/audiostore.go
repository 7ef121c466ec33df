// Package audiostore stores uploaded case audio so a Case can carry a
// resolvable audio_url. It provides the AudioStore interface, a thread-safe
// in-memory implementation, and Echo handlers for upload and download.
package audiostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrAudioNotFound      = errors.New("audio not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not audio")
)

// MaxAudioSize is the maximum allowed upload size in bytes (10 MB), matching
// the transcription ceiling.
const MaxAudioSize = 10 * 1024 * 1024

// AudioMetadata describes a stored recording.
type AudioMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// AudioStore is the contract for audio storage backends.
type AudioStore interface {
	Upload(ctx context.Context, meta AudioMetadata, content io.Reader) (*AudioMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *AudioMetadata, error)
	Delete(ctx context.Context, id string) error
}

type storedAudio struct {
	metadata AudioMetadata
	content  []byte
}

// InMemoryAudioStore is a thread-safe, in-memory AudioStore.
type InMemoryAudioStore struct {
	mu    sync.RWMutex
	items map[string]*storedAudio
}

func NewInMemoryAudioStore() *InMemoryAudioStore {
	return &InMemoryAudioStore{items: make(map[string]*storedAudio)}
}

// Upload validates the content type and size, then stores the recording.
func (s *InMemoryAudioStore) Upload(_ context.Context, meta AudioMetadata, content io.Reader) (*AudioMetadata, error) {
	if !strings.HasPrefix(meta.ContentType, "audio/") {
		return nil, ErrInvalidContentType
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxAudioSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxAudioSize {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.URL = "/api/audio/" + meta.ID
	meta.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	s.items[meta.ID] = &storedAudio{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

// Download returns an io.ReadCloser over the recording and its metadata.
func (s *InMemoryAudioStore) Download(_ context.Context, id string) (io.ReadCloser, *AudioMetadata, error) {
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrAudioNotFound
	}

	meta := item.metadata
	return io.NopCloser(bytes.NewReader(item.content)), &meta, nil
}

// Delete removes a recording by ID.
func (s *InMemoryAudioStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ErrAudioNotFound
	}
	delete(s.items, id)
	return nil
}

// Handler provides Echo HTTP handlers for audio operations.
type Handler struct {
	store AudioStore
}

func NewHandler(store AudioStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts audio routes on the supplied Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/audio", h.handleUpload)
	g.GET("/audio/:id", h.handleDownload)
	g.DELETE("/audio/:id", h.handleDelete)
}

func (h *Handler) handleUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "No file uploaded"})
	}

	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to read upload"})
	}
	defer src.Close()

	meta, err := h.store.Upload(c.Request().Context(), AudioMetadata{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
	}, src)
	switch {
	case errors.Is(err, ErrInvalidContentType):
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "File must be audio"})
	case errors.Is(err, ErrFileTooLarge):
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "File exceeds 10MB limit"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to store audio"})
	}

	return c.JSON(http.StatusCreated, meta)
}

func (h *Handler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Audio not found"})
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) handleDelete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Audio not found"})
	}
	return c.NoContent(http.StatusNoContent)
}
