// Package providertest provides a scriptable provider.Provider for tests.
package providertest

import (
	"context"
	"sync"

	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/pkg/models"
)

// Provider answers with canned values unless the matching func field is set.
type Provider struct {
	AnalyzeFunc  func(ctx context.Context, subject, reference *models.Image) (models.SuggestionResult, error)
	GenerateFunc func(ctx context.Context, req *provider.GenerateRequest) (*models.Artifact, error)
	UpscaleFunc  func(ctx context.Context, a *models.Artifact, target models.UpscaleTarget) (*models.Artifact, error)
	BriefsFunc   func(ctx context.Context, subject, reference *models.Image) ([]models.Brief, error)

	mu    sync.Mutex
	calls map[string]int
	last  *provider.GenerateRequest
}

var _ provider.Provider = (*Provider)(nil)

func (p *Provider) Name() string {
	return "fake"
}

func (p *Provider) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[op]++
}

// Calls returns how many times op ("analyze", "generate", "upscale", "briefs") ran.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// LastRequest returns the most recent generate request.
func (p *Provider) LastRequest() *provider.GenerateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Provider) AnalyzeComposite(ctx context.Context, subject, reference *models.Image) (models.SuggestionResult, error) {
	p.record("analyze")
	if p.AnalyzeFunc != nil {
		return p.AnalyzeFunc(ctx, subject, reference)
	}
	return models.SuggestionResult{}, nil
}

func (p *Provider) Generate(ctx context.Context, req *provider.GenerateRequest) (*models.Artifact, error) {
	p.record("generate")
	p.mu.Lock()
	p.last = req
	p.mu.Unlock()
	if p.GenerateFunc != nil {
		return p.GenerateFunc(ctx, req)
	}
	return &models.Artifact{Data: []byte("generated"), MIMEType: "image/png"}, nil
}

func (p *Provider) Upscale(ctx context.Context, a *models.Artifact, target models.UpscaleTarget) (*models.Artifact, error) {
	p.record("upscale")
	if p.UpscaleFunc != nil {
		return p.UpscaleFunc(ctx, a, target)
	}
	return &models.Artifact{Data: []byte("upscaled-" + target.String()), MIMEType: "image/png"}, nil
}

func (p *Provider) SuggestBriefs(ctx context.Context, subject, reference *models.Image) ([]models.Brief, error) {
	p.record("briefs")
	if p.BriefsFunc != nil {
		return p.BriefsFunc(ctx, subject, reference)
	}
	return []models.Brief{
		{Title: "Morning Ritual", Text: "Place the product on a sunlit kitchen counter."},
		{Title: "Night Out", Text: "Show the product on a neon-lit bar top."},
		{Title: "Minimal", Text: "Float the product over a pale grey seamless backdrop."},
	}, nil
}
