package studio

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/manash/prodstudio/pkg/models"
)

// SuggestBriefs asks the provider for three creative briefs for the current images.
func (s *Session) SuggestBriefs(ctx context.Context) ([]models.Brief, error) {
	s.mu.Lock()
	if s.subject == nil {
		e := s.setError(validationError(opBriefs, ErrNoSubject))
		s.unlock()
		return nil, e
	}
	if s.suggestingBriefs {
		s.unlock()
		return nil, validationError(opBriefs, ErrBriefsInFlight)
	}
	subject, reference := s.subject, s.reference
	token := s.newToken()
	s.briefToken = token
	s.suggestingBriefs = true
	s.briefs = nil
	s.err = nil
	s.unlock()

	briefs, err := s.provider.SuggestBriefs(ctx, subject, reference)

	s.mu.Lock()
	defer s.unlock()
	if s.briefToken != token {
		return nil, ErrSuperseded
	}
	s.briefToken = ""
	s.suggestingBriefs = false
	if err != nil {
		return nil, s.setError(remoteError(opBriefs, err, msgBriefsFailed, msgBriefsFailed))
	}
	s.briefs = slices.Clone(briefs)
	return slices.Clone(briefs), nil
}

// Briefs returns the last suggested briefs.
func (s *Session) Briefs() []models.Brief {
	s.mu.Lock()
	defer s.unlock()
	return slices.Clone(s.briefs)
}

// UseBrief copies the text of suggestion i (zero based) into the brief field.
func (s *Session) UseBrief(i int) (models.Brief, error) {
	s.mu.Lock()
	defer s.unlock()
	if i < 0 || i >= len(s.briefs) {
		return models.Brief{}, s.setError(validationError(opBriefs, fmt.Errorf("%w: %d", ErrNoSuchBrief, i+1)))
	}
	b := s.briefs[i]
	s.brief = strings.TrimSpace(b.Text)
	return b, nil
}
