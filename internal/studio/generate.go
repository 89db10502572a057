package studio

import (
	"context"

	"github.com/manash/prodstudio/internal/prompt"
	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/pkg/models"
)

func (s *Session) setGenPhase(p Phase) {
	from := s.genPhase
	s.genPhase = p
	s.pending = append(s.pending, Transition{Machine: MachineGenerate, From: from, To: p})
}

// GenerationPhase returns the current phase of the generation machine.
func (s *Session) GenerationPhase() Phase {
	s.mu.Lock()
	defer s.unlock()
	return s.genPhase
}

func (s *Session) validateGenerateLocked() error {
	switch {
	case s.subject == nil:
		return ErrNoSubject
	case s.analyzing:
		return ErrAnalysisInFlight
	case s.upPhase != PhaseIdle:
		return ErrUpscaleInFlight
	}
	return nil
}

func (s *Session) failGenerateLocked(e *Error) *Error {
	if !busy(e.Err) {
		s.setError(e)
	}
	s.setGenPhase(PhaseFailed)
	s.setGenPhase(PhaseIdle)
	return e
}

// Generate composes the prompt from the current session and asks the
// provider for a new image. On success the artifact is replaced; on failure
// the previous artifact stays and the error slot is set.
func (s *Session) Generate(ctx context.Context) (*models.Artifact, error) {
	s.mu.Lock()
	if s.genPhase != PhaseIdle {
		s.unlock()
		return nil, validationError(opGenerate, ErrGenerationInFlight)
	}
	s.setGenPhase(PhaseValidating)
	if err := s.validateGenerateLocked(); err != nil {
		e := s.failGenerateLocked(validationError(opGenerate, err))
		s.unlock()
		return nil, e
	}
	s.unlock()

	online := s.network.Online(ctx)

	s.mu.Lock()
	if s.genPhase != PhaseValidating {
		// reset while probing
		s.unlock()
		return nil, ErrSuperseded
	}
	if !online {
		e := s.failGenerateLocked(validationError(opGenerate, ErrOffline))
		s.unlock()
		return nil, e
	}
	if err := s.validateGenerateLocked(); err != nil {
		e := s.failGenerateLocked(validationError(opGenerate, err))
		s.unlock()
		return nil, e
	}
	params := s.paramsLocked()
	text := prompt.Compose(prompt.FromParams(params))
	token := s.newToken()
	s.genToken = token
	s.err = nil
	s.setGenPhase(PhaseInFlight)
	s.unlock()

	s.logger.Info().
		Str("aspect_ratio", params.Export.AspectRatio.String()).
		Bool("transparent", params.Export.Transparent).
		Bool("composite", params.Composite).
		Bool("reference", params.Reference != nil).
		Msg("generating")

	art, err := s.provider.Generate(ctx, &provider.GenerateRequest{
		Subject:     params.Subject,
		Reference:   params.Reference,
		Prompt:      text,
		AspectRatio: params.Export.AspectRatio,
	})
	if err == nil && (art == nil || len(art.Data) == 0) {
		err = provider.ErrNoImage
	}

	s.mu.Lock()
	if s.genToken != token {
		s.unlock()
		s.logger.Debug().Msg("dropping superseded generation")
		return nil, ErrSuperseded
	}
	s.genToken = ""
	if err != nil {
		e := s.failGenerateLocked(remoteError(opGenerate, err, msgGenerateFailed, msgGenerateEmpty))
		s.unlock()
		return nil, e
	}
	s.artifact = art.Clone()
	s.prompt = text
	s.setGenPhase(PhaseSucceeded)
	s.setGenPhase(PhaseIdle)
	ev := ArtifactEvent{
		SessionID: s.id,
		Operation: opGenerate,
		Prompt:    text,
		Export:    params.Export,
		Brief:     params.Brief,
		Composite: params.Composite,
		PresetIDs: presetIDs(params.Selections),
		Artifact:  art.Clone(),
	}
	s.unlock()

	s.logger.Info().Int("bytes", len(art.Data)).Str("mime", art.MIMEType).Msg("generated")
	if s.onArtifact != nil {
		s.onArtifact(ctx, ev)
	}
	return art.Clone(), nil
}
