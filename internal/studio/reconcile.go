package studio

import (
	"context"

	"github.com/manash/prodstudio/pkg/models"
)

// Reconcile asks the analyzer for presets that fit the subject and reference
// pair and applies them. It is a no-op unless both images are present. The
// selection is cleared before the call, so the result replaces whatever was
// selected, including edits made while the call was in flight.
func (s *Session) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	subject, reference := s.subject, s.reference
	if subject == nil || reference == nil {
		s.unlock()
		return nil
	}
	token := s.newToken()
	s.analysisToken = token
	s.analyzing = true
	s.suggested = nil
	s.err = nil
	s.unlock()

	s.selections.ClearAll()
	s.logger.Debug().Str("subject", subject.Digest()).Str("reference", reference.Digest()).Msg("analyzing composite")

	result, err := s.provider.AnalyzeComposite(ctx, subject, reference)

	s.mu.Lock()
	defer s.unlock()
	if s.analysisToken != token {
		s.logger.Debug().Msg("dropping superseded analysis")
		return ErrSuperseded
	}
	s.analysisToken = ""
	s.analyzing = false

	if err != nil {
		s.auto = false
		s.suggested = nil
		return s.setError(remoteError(opAnalyze, err, msgAnalyzeFailed, msgAnalyzeFailed))
	}

	for _, cat := range models.Categories() {
		ids, ok := result[cat]
		if !ok {
			continue
		}
		if unknown := s.catalog.Unknown(cat, ids); len(unknown) > 0 {
			s.logger.Debug().Str("category", cat.String()).Strs("ids", unknown).Msg("ignoring unknown suggested presets")
		}
		s.selections.ReplaceAll(cat, s.catalog.Filter(cat, ids))
	}
	if s.auto {
		s.suggested = cloneSuggestion(result)
	}
	return nil
}

// Analyzing reports whether a suggestion analysis is in flight.
func (s *Session) Analyzing() bool {
	s.mu.Lock()
	defer s.unlock()
	return s.analyzing
}

func (s *Session) reconcileIfAuto(ctx context.Context) error {
	s.mu.Lock()
	ready := s.auto && s.subject != nil && s.reference != nil
	s.unlock()
	if !ready {
		return nil
	}
	return s.Reconcile(ctx)
}

// cancelAnalysisLocked orphans the in-flight analysis so its response is ignored.
func (s *Session) cancelAnalysisLocked() {
	if s.analyzing {
		s.logger.Debug().Msg("superseding analysis")
	}
	s.analysisToken = ""
	s.analyzing = false
}
