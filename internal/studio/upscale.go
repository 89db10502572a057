package studio

import (
	"context"

	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/pkg/models"
)

func (s *Session) setUpPhase(p Phase) {
	from := s.upPhase
	s.upPhase = p
	s.pending = append(s.pending, Transition{Machine: MachineUpscale, From: from, To: p, Target: s.upTarget})
}

// UpscalePhase returns the current phase of the upscale machine and its target.
func (s *Session) UpscalePhase() (Phase, models.UpscaleTarget) {
	s.mu.Lock()
	defer s.unlock()
	return s.upPhase, s.upTarget
}

// Upscale re-renders the current artifact at a higher resolution. Without an
// artifact it returns ErrNoArtifact and changes nothing.
func (s *Session) Upscale(ctx context.Context, target models.UpscaleTarget) (*models.Artifact, error) {
	s.mu.Lock()
	if s.artifact == nil {
		s.unlock()
		return nil, ErrNoArtifact
	}
	if !target.IsValid() {
		e := s.setError(validationError(opUpscale, models.ErrInvalidTarget))
		s.unlock()
		return nil, e
	}
	if s.upPhase != PhaseIdle {
		s.unlock()
		return nil, validationError(opUpscale, ErrUpscaleInFlight)
	}
	if s.genPhase != PhaseIdle {
		s.unlock()
		return nil, validationError(opUpscale, ErrGenerationInFlight)
	}
	source := s.artifact.Clone()
	token := s.newToken()
	s.upToken = token
	s.upTarget = target
	s.err = nil
	s.setUpPhase(PhaseInFlight)
	s.unlock()

	s.logger.Info().Str("target", target.String()).Int("long_edge", target.LongEdge()).Msg("upscaling")

	art, err := s.provider.Upscale(ctx, source, target)
	if err == nil && (art == nil || len(art.Data) == 0) {
		err = provider.ErrNoImage
	}

	s.mu.Lock()
	if s.upToken != token {
		s.unlock()
		s.logger.Debug().Msg("dropping superseded upscale")
		return nil, ErrSuperseded
	}
	s.upToken = ""
	if err != nil {
		failMsg, emptyMsg := upscaleMessages(target)
		e := s.setError(remoteError(opUpscale, err, failMsg, emptyMsg))
		s.setUpPhase(PhaseFailed)
		s.setUpPhase(PhaseIdle)
		s.upTarget = ""
		s.unlock()
		return nil, e
	}
	s.artifact = art.Clone()
	s.setUpPhase(PhaseSucceeded)
	s.setUpPhase(PhaseIdle)
	s.upTarget = ""
	ev := ArtifactEvent{
		SessionID: s.id,
		Operation: opUpscale,
		Prompt:    s.prompt,
		Target:    target,
		Export:    s.export,
		Brief:     s.brief,
		Composite: s.auto,
		Artifact:  art.Clone(),
	}
	s.unlock()

	s.logger.Info().Int("bytes", len(art.Data)).Str("target", target.String()).Msg("upscaled")
	if s.onArtifact != nil {
		s.onArtifact(ctx, ev)
	}
	return art.Clone(), nil
}
