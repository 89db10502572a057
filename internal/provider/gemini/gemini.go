package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/pkg/models"
)

const (
	ProviderName = "gemini"

	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultTimeout    = 3 * time.Minute
)

// contentGenerator is the slice of the SDK the provider uses; *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Provider struct {
	models     contentGenerator
	textModel  string
	imageModel string
	timeout    time.Duration
	logger     zerolog.Logger
}

func New(ctx context.Context, cfg *provider.Config, logger zerolog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newWithGenerator(client.Models, cfg, logger), nil
}

func newWithGenerator(gen contentGenerator, cfg *provider.Config, logger zerolog.Logger) *Provider {
	p := &Provider{
		models:     gen,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		timeout:    cfg.Timeout,
		logger:     logger.With().Str("provider", ProviderName).Logger(),
	}
	if p.textModel == "" {
		p.textModel = DefaultTextModel
	}
	if p.imageModel == "" {
		p.imageModel = DefaultImageModel
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	return p
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) AnalyzeComposite(ctx context.Context, subject, reference *models.Image) (models.SuggestionResult, error) {
	parts := []*genai.Part{
		imagePart(subject),
		imagePart(reference),
		genai.NewPartFromText(analysisPrompt),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   suggestionSchema(),
	}

	resp, err := p.call(ctx, "analyze", p.textModel, parts, cfg)
	if err != nil {
		return nil, err
	}
	return provider.DecodeSuggestion(resp.Text())
}

func (p *Provider) Generate(ctx context.Context, req *provider.GenerateRequest) (*models.Artifact, error) {
	parts := []*genai.Part{imagePart(req.Subject)}
	if req.Reference != nil {
		parts = append(parts, imagePart(req.Reference))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	resp, err := p.call(ctx, "generate", p.imageModel, parts, imageConfig())
	if err != nil {
		return nil, err
	}
	return firstImage(resp)
}

func (p *Provider) Upscale(ctx context.Context, artifact *models.Artifact, target models.UpscaleTarget) (*models.Artifact, error) {
	if !target.IsValid() {
		return nil, models.ErrInvalidTarget
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(artifact.Data, artifact.MIMEType),
		genai.NewPartFromText(upscalePrompt(target)),
	}

	resp, err := p.call(ctx, "upscale", p.imageModel, parts, imageConfig())
	if err != nil {
		return nil, err
	}
	return firstImage(resp)
}

func (p *Provider) SuggestBriefs(ctx context.Context, subject, reference *models.Image) ([]models.Brief, error) {
	parts := []*genai.Part{imagePart(subject)}
	text := briefPrompt
	if reference != nil {
		parts = append(parts, imagePart(reference))
		text = briefPromptWithReference
	}
	parts = append(parts, genai.NewPartFromText(text))

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   briefSchema(),
	}

	resp, err := p.call(ctx, "briefs", p.textModel, parts, cfg)
	if err != nil {
		return nil, err
	}
	return provider.DecodeBriefs(resp.Text())
}

func (p *Provider) call(ctx context.Context, op, model string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := p.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		p.logger.Warn().Err(err).Str("op", op).Str("model", model).Dur("elapsed", time.Since(start)).Msg("gemini request failed")
		return nil, fmt.Errorf("%w: %s: %v", provider.ErrCollaborator, op, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: %s: empty response", provider.ErrMalformedResponse, op)
	}

	p.logger.Debug().Str("op", op).Str("model", model).Dur("elapsed", time.Since(start)).Msg("gemini request done")
	return resp, nil
}

func imagePart(img *models.Image) *genai.Part {
	return genai.NewPartFromBytes(img.Data, img.MIMEType)
}

func imageConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}
}

// firstImage returns the first inline image of the first candidate.
func firstImage(resp *genai.GenerateContentResponse) (*models.Artifact, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil, provider.ErrNoImage
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return &models.Artifact{Data: part.InlineData.Data, MIMEType: mime}, nil
	}
	return nil, provider.ErrNoImage
}
