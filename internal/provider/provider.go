package provider

import (
	"context"
	"errors"
	"time"

	"github.com/manash/prodstudio/pkg/models"
)

var (
	ErrAPIKeyRequired = errors.New("API key is required")

	// ErrCollaborator wraps transport and service failures of the remote model.
	ErrCollaborator = errors.New("image service request failed")

	// Empty-result failures: the call succeeded but the payload is unusable.
	ErrNoImage           = errors.New("model did not return an image")
	ErrMalformedResponse = errors.New("model returned a malformed response")
	ErrBriefCount        = errors.New("model returned the wrong number of creative briefs")
)

// IsEmptyResult reports whether err is a successful call without the expected payload.
func IsEmptyResult(err error) bool {
	return errors.Is(err, ErrNoImage) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, ErrBriefCount)
}

// BriefCount is the number of creative briefs the model is asked for.
const BriefCount = 3

// Provider is the remote generative image and vision service.
type Provider interface {
	Name() string
	AnalyzeComposite(ctx context.Context, subject, reference *models.Image) (models.SuggestionResult, error)
	Generate(ctx context.Context, req *GenerateRequest) (*models.Artifact, error)
	Upscale(ctx context.Context, artifact *models.Artifact, target models.UpscaleTarget) (*models.Artifact, error)
	SuggestBriefs(ctx context.Context, subject, reference *models.Image) ([]models.Brief, error)
}

type GenerateRequest struct {
	Subject     *models.Image
	Reference   *models.Image
	Prompt      string
	AspectRatio models.AspectRatio
}

type Config struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	Timeout    time.Duration
	Verbose    bool
}
