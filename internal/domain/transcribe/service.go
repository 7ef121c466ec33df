// Package transcribe turns uploaded audio into plain text through the
// generative language API. The endpoint is stateless: nothing is persisted
// and no case record is touched.
package transcribe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/casecare/casecare/internal/platform/genai"
	"github.com/casecare/casecare/internal/platform/metrics"
)

// MaxAudioSize is the upload ceiling in bytes (10 MB).
const MaxAudioSize = 10 * 1024 * 1024

const transcribeInstruction = "Transcribe this audio exactly. Do not add any commentary."

var (
	ErrFileTooLarge       = errors.New("audio exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not audio")
)

// ModelClient is the slice of the generative API the service needs, so tests
// can substitute a fake.
type ModelClient interface {
	GenerateContent(ctx context.Context, req genai.GenerateContentRequest) (*genai.GenerateContentResponse, error)
}

type Service struct {
	client  ModelClient
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewService(client ModelClient, logger zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{client: client, logger: logger, metrics: m}
}

// Transcribe validates the upload and runs one transcription call. The
// returned text may be empty; an empty transcript is not an error. Validation
// failures are reported before the external service is ever invoked.
func (s *Service) Transcribe(ctx context.Context, contentType string, audio io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "audio/") {
		return "", ErrInvalidContentType
	}

	data, err := io.ReadAll(io.LimitReader(audio, MaxAudioSize+1))
	if err != nil {
		return "", fmt.Errorf("reading audio: %w", err)
	}
	if int64(len(data)) > MaxAudioSize {
		return "", ErrFileTooLarge
	}

	resp, err := s.client.GenerateContent(ctx, genai.GenerateContentRequest{
		Contents: []genai.Content{{
			Role: "user",
			Parts: []genai.Part{
				{Text: transcribeInstruction},
				{InlineData: &genai.Blob{
					MIMEType: contentType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	})
	if err != nil {
		s.metrics.Transcriptions.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("transcription call: %w", err)
	}

	s.metrics.Transcriptions.WithLabelValues("completed").Inc()
	return resp.Text(), nil
}
