package studio

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manash/prodstudio/internal/catalog"
	"github.com/manash/prodstudio/internal/netcheck"
	"github.com/manash/prodstudio/internal/prompt"
	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/internal/selection"
	"github.com/manash/prodstudio/pkg/models"
)

type Config struct {
	ID           string
	Catalog      *catalog.Catalog
	Selections   *selection.Store
	Provider     provider.Provider
	Network      netcheck.Checker
	Logger       zerolog.Logger
	OnTransition func(Transition)
	OnArtifact   func(ctx context.Context, ev ArtifactEvent)
	NewToken     func() string
}

// Session is one studio: uploaded images, preset selection, export settings,
// the latest artifact and the single current error. Collaborator calls run
// without the session lock; request tokens decide whether a response still applies.
type Session struct {
	id           string
	catalog      *catalog.Catalog
	selections   *selection.Store
	provider     provider.Provider
	network      netcheck.Checker
	logger       zerolog.Logger
	onTransition func(Transition)
	onArtifact   func(ctx context.Context, ev ArtifactEvent)
	newToken     func() string

	mu        sync.Mutex
	pending   []Transition
	subject   *models.Image
	reference *models.Image
	export    models.ExportSettings
	brief     string
	auto      bool
	suggested models.SuggestionResult
	briefs    []models.Brief
	artifact  *models.Artifact
	prompt    string
	err       *Error

	analyzing     bool
	analysisToken string

	genPhase Phase
	genToken string

	upPhase  Phase
	upTarget models.UpscaleTarget
	upToken  string

	suggestingBriefs bool
	briefToken       string
}

func New(cfg *Config) *Session {
	s := &Session{
		id:           cfg.ID,
		catalog:      cfg.Catalog,
		selections:   cfg.Selections,
		provider:     cfg.Provider,
		network:      cfg.Network,
		logger:       cfg.Logger,
		onTransition: cfg.OnTransition,
		onArtifact:   cfg.OnArtifact,
		newToken:     cfg.NewToken,
		export:       models.DefaultExportSettings(),
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.selections == nil {
		s.selections = selection.NewStore()
	}
	if s.network == nil {
		s.network = netcheck.Static(true)
	}
	if s.newToken == nil {
		s.newToken = uuid.NewString
	}
	s.logger = s.logger.With().Str("session", s.id).Logger()
	s.selections.OnManualChange(s.onManualChange)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *Session) Selections() *selection.Store {
	return s.selections
}

// unlock releases the session lock and then delivers queued transitions.
func (s *Session) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if s.onTransition == nil {
		return
	}
	for _, t := range pending {
		s.onTransition(t)
	}
}

func (s *Session) setError(e *Error) *Error {
	s.err = e
	s.logger.Debug().Str("op", e.Op).Str("kind", e.Kind.String()).Err(e.Err).Msg(e.Message)
	return e
}

// SetSubject replaces the subject image. A nil image clears it.
func (s *Session) SetSubject(ctx context.Context, img *models.Image) error {
	s.mu.Lock()
	s.subject = img
	s.cancelAnalysisLocked()
	s.unlock()
	return s.reconcileIfAuto(ctx)
}

// SetReference replaces the reference image. A nil image clears it.
func (s *Session) SetReference(ctx context.Context, img *models.Image) error {
	s.mu.Lock()
	s.reference = img
	s.cancelAnalysisLocked()
	s.unlock()
	return s.reconcileIfAuto(ctx)
}

func (s *Session) Subject() *models.Image {
	s.mu.Lock()
	defer s.unlock()
	return s.subject
}

func (s *Session) Reference() *models.Image {
	s.mu.Lock()
	defer s.unlock()
	return s.reference
}

// SetAutoMode switches the AI art director on or off. Turning it on with
// both images present runs the reconciler; turning it off drops the
// suggestion annotations but keeps the selection.
func (s *Session) SetAutoMode(ctx context.Context, on bool) error {
	s.mu.Lock()
	was := s.auto
	s.auto = on
	if !on {
		s.suggested = nil
		s.cancelAnalysisLocked()
		s.unlock()
		return nil
	}
	s.unlock()

	if was {
		return nil
	}
	return s.reconcileIfAuto(ctx)
}

func (s *Session) AutoMode() bool {
	s.mu.Lock()
	defer s.unlock()
	return s.auto
}

// onManualChange is the selection store listener: manual edits leave auto mode.
func (s *Session) onManualChange(c selection.Change) {
	s.mu.Lock()
	defer s.unlock()
	if !s.auto {
		return
	}
	s.auto = false
	s.suggested = nil
	s.logger.Debug().Str("category", c.Category.String()).Str("preset", c.Preset.ID).Msg("manual edit, leaving auto mode")
}

// Toggle flips a catalog preset in the selection.
func (s *Session) Toggle(cat models.Category, id string) ([]models.Preset, error) {
	p, ok := s.catalog.Lookup(cat, id)
	if !ok {
		s.mu.Lock()
		e := s.setError(validationError(opToggle, fmt.Errorf("%w: %s/%s", ErrUnknownPreset, cat, id)))
		s.unlock()
		return nil, e
	}
	return s.selections.Toggle(cat, p), nil
}

func (s *Session) SetBrief(text string) {
	s.mu.Lock()
	defer s.unlock()
	s.brief = text
}

func (s *Session) Brief() string {
	s.mu.Lock()
	defer s.unlock()
	return s.brief
}

func (s *Session) SetExport(e models.ExportSettings) error {
	if err := e.Validate(); err != nil {
		s.mu.Lock()
		defer s.unlock()
		return s.setError(validationError(opExport, fmt.Errorf("%w: %q", err, e.AspectRatio)))
	}
	s.mu.Lock()
	defer s.unlock()
	s.export = e
	return nil
}

func (s *Session) SetAspectRatio(a models.AspectRatio) error {
	e := s.Export()
	e.AspectRatio = a
	return s.SetExport(e)
}

func (s *Session) SetTransparent(on bool) {
	s.mu.Lock()
	defer s.unlock()
	s.export.Transparent = on
}

func (s *Session) Export() models.ExportSettings {
	s.mu.Lock()
	defer s.unlock()
	return s.export
}

// Suggestions returns the last applied analyzer picks, if auto mode kept them.
func (s *Session) Suggestions() models.SuggestionResult {
	s.mu.Lock()
	defer s.unlock()
	return cloneSuggestion(s.suggested)
}

// Artifact returns a copy of the latest generated image, or nil.
func (s *Session) Artifact() *models.Artifact {
	s.mu.Lock()
	defer s.unlock()
	return s.artifact.Clone()
}

// LastPrompt is the prompt text that produced the current artifact.
func (s *Session) LastPrompt() string {
	s.mu.Lock()
	defer s.unlock()
	return s.prompt
}

// Err returns the current error, or nil.
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.unlock()
	return s.err
}

func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.unlock()
	s.err = nil
}

// Reset drops images, selection, brief, artifact and error, and orphans every
// in-flight request.
func (s *Session) Reset() {
	s.mu.Lock()
	s.subject, s.reference = nil, nil
	s.brief = ""
	s.auto = false
	s.suggested = nil
	s.briefs = nil
	s.artifact = nil
	s.prompt = ""
	s.err = nil
	s.export = models.DefaultExportSettings()
	s.cancelAnalysisLocked()
	if s.genPhase != PhaseIdle {
		s.setGenPhase(PhaseIdle)
	}
	s.genToken = ""
	if s.upPhase != PhaseIdle {
		s.setUpPhase(PhaseIdle)
	}
	s.upToken = ""
	s.suggestingBriefs = false
	s.briefToken = ""
	s.unlock()

	s.selections.ClearAll()
}

// Params snapshots everything a generation needs.
func (s *Session) Params() models.GenerationParams {
	s.mu.Lock()
	defer s.unlock()
	return s.paramsLocked()
}

func (s *Session) paramsLocked() models.GenerationParams {
	p := models.GenerationParams{
		Subject:    s.subject,
		Reference:  s.reference,
		Selections: s.selections.Snapshot(),
		Export:     s.export,
		Brief:      s.brief,
		Composite:  s.auto,
	}
	if m, ok := s.selections.EffectiveMockup(); ok {
		p.Mockup = &m
	}
	return p
}

// ComposePrompt renders the prompt the next generation would send.
func (s *Session) ComposePrompt() string {
	return prompt.Compose(prompt.FromParams(s.Params()))
}

type Status struct {
	SessionID        string
	HasSubject       bool
	HasReference     bool
	SubjectDigest    string
	ReferenceDigest  string
	AutoMode         bool
	Analyzing        bool
	SuggestingBriefs bool
	Generation       Phase
	Upscale          Phase
	UpscaleTarget    models.UpscaleTarget
	HasArtifact      bool
	Online           bool
	CanGenerate      bool
	CanUpscale       bool
	Export           models.ExportSettings
	Brief            string
	Error            *Error
}

func (s *Session) Status(ctx context.Context) Status {
	online := s.network.Online(ctx)

	s.mu.Lock()
	defer s.unlock()
	st := Status{
		SessionID:        s.id,
		HasSubject:       s.subject != nil,
		HasReference:     s.reference != nil,
		AutoMode:         s.auto,
		Analyzing:        s.analyzing,
		SuggestingBriefs: s.suggestingBriefs,
		Generation:       s.genPhase,
		Upscale:          s.upPhase,
		UpscaleTarget:    s.upTarget,
		HasArtifact:      s.artifact != nil,
		Online:           online,
		Export:           s.export,
		Brief:            s.brief,
		Error:            s.err,
	}
	if s.subject != nil {
		st.SubjectDigest = s.subject.Digest()
	}
	if s.reference != nil {
		st.ReferenceDigest = s.reference.Digest()
	}
	idle := s.genPhase == PhaseIdle && s.upPhase == PhaseIdle
	st.CanGenerate = st.HasSubject && idle && !s.analyzing && online
	st.CanUpscale = st.HasArtifact && idle
	return st
}

func cloneSuggestion(r models.SuggestionResult) models.SuggestionResult {
	if r == nil {
		return nil
	}
	out := make(models.SuggestionResult, len(r))
	for k, v := range r {
		out[k] = slices.Clone(v)
	}
	return out
}

func presetIDs(sel map[models.Category][]models.Preset) map[models.Category][]string {
	out := make(map[models.Category][]string, len(sel))
	for _, cat := range slices.Sorted(maps.Keys(sel)) {
		for _, p := range sel[cat] {
			out[cat] = append(out[cat], p.ID)
		}
	}
	return out
}
