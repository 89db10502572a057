package studio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/manash/prodstudio/internal/catalog"
	"github.com/manash/prodstudio/internal/netcheck"
	"github.com/manash/prodstudio/internal/prompt"
	"github.com/manash/prodstudio/internal/provider"
	"github.com/manash/prodstudio/internal/provider/providertest"
	"github.com/manash/prodstudio/pkg/models"
)

type transitionLog struct {
	mu  sync.Mutex
	all []Transition
}

func (l *transitionLog) add(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, t)
}

func (l *transitionLog) phases(m Machine) []Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Phase
	for _, t := range l.all {
		if t.Machine == m {
			out = append(out, t.To)
		}
	}
	return out
}

func newTestSession(t *testing.T, p *providertest.Provider) (*Session, *transitionLog) {
	t.Helper()
	log := &transitionLog{}
	n := 0
	s := New(&Config{
		ID:           "test",
		Catalog:      catalog.Default(),
		Provider:     p,
		Network:      netcheck.Static(true),
		Logger:       zerolog.Nop(),
		OnTransition: log.add,
		NewToken: func() string {
			n++
			return fmt.Sprintf("tok-%d", n)
		},
	})
	return s, log
}

func testImage(t *testing.T, name string) *models.Image {
	t.Helper()
	img, err := models.NewImage([]byte(name+" bytes"), "image/png", name+".png")
	if err != nil {
		t.Fatalf("NewImage() error = %v", err)
	}
	return img
}

func withImages(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	if err := s.SetSubject(ctx, testImage(t, "subject")); err != nil {
		t.Fatalf("SetSubject() error = %v", err)
	}
	if err := s.SetReference(ctx, testImage(t, "reference")); err != nil {
		t.Fatalf("SetReference() error = %v", err)
	}
}

func selectionIDs(s *Session, cat models.Category) []string {
	ids := []string{}
	for _, p := range s.Selections().Get(cat) {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestReconcile_DropsUnknownIDs(t *testing.T) {
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			return models.SuggestionResult{
				models.CategoryCamera:         {"camera_cinematic"},
				models.CategoryLighting:       {},
				models.CategoryMockup:         {},
				models.CategoryManipulation:   {"bad_id"},
				models.CategoryProductRetouch: {},
				models.CategoryPeopleRetouch:  {},
			}, nil
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)

	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	for _, cat := range models.Categories() {
		got := selectionIDs(s, cat)
		want := []string{}
		if cat == models.CategoryCamera {
			want = []string{"camera_cinematic"}
		}
		if !slices.Equal(got, want) {
			t.Errorf("selection[%s] = %v, want %v", cat, got, want)
		}
	}
	if p.Calls("analyze") != 1 {
		t.Errorf("analyze calls = %d, want 1", p.Calls("analyze"))
	}
	if s.Analyzing() {
		t.Error("Analyzing() = true after Reconcile returned")
	}
}

func TestReconcile_CatalogOrder(t *testing.T) {
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			return models.SuggestionResult{
				models.CategoryCamera: {"camera_cinematic", "camera_dslr", "camera_cinematic"},
			}, nil
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)

	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	got := selectionIDs(s, models.CategoryCamera)
	want := []string{"camera_dslr", "camera_cinematic"}
	if !slices.Equal(got, want) {
		t.Errorf("camera selection = %v, want %v", got, want)
	}
}

func TestReconcile_ClearsManualSelection(t *testing.T) {
	p := &providertest.Provider{}
	s, _ := newTestSession(t, p)
	withImages(t, s)
	if _, err := s.Toggle(models.CategoryLighting, "lighting_softbox"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if got := selectionIDs(s, models.CategoryLighting); len(got) != 0 {
		t.Errorf("lighting selection = %v, want empty", got)
	}
}

func TestReconcile_NoOpWithoutBothImages(t *testing.T) {
	tests := []struct {
		name      string
		subject   bool
		reference bool
	}{
		{"no images", false, false},
		{"subject only", true, false},
		{"reference only", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &providertest.Provider{}
			s, _ := newTestSession(t, p)
			ctx := context.Background()
			if tt.subject {
				s.SetSubject(ctx, testImage(t, "subject"))
			}
			if tt.reference {
				s.SetReference(ctx, testImage(t, "reference"))
			}
			s.Toggle(models.CategoryCamera, "camera_dslr")

			if err := s.Reconcile(ctx); err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if p.Calls("analyze") != 0 {
				t.Errorf("analyze calls = %d, want 0", p.Calls("analyze"))
			}
			if got := selectionIDs(s, models.CategoryCamera); !slices.Equal(got, []string{"camera_dslr"}) {
				t.Errorf("camera selection = %v, want untouched", got)
			}
			if s.Analyzing() {
				t.Error("Analyzing() = true")
			}
		})
	}
}

func TestReconcile_FailureLeavesAutoMode(t *testing.T) {
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			return nil, fmt.Errorf("%w: boom", provider.ErrCollaborator)
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)

	err := s.SetAutoMode(context.Background(), true)
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("SetAutoMode() error = %v, want *Error", err)
	}
	if serr.Kind != KindCollaborator {
		t.Errorf("Kind = %v, want %v", serr.Kind, KindCollaborator)
	}
	if serr.Message != msgAnalyzeFailed {
		t.Errorf("Message = %q, want %q", serr.Message, msgAnalyzeFailed)
	}
	if s.AutoMode() {
		t.Error("AutoMode() = true after failed analysis")
	}
	if s.Analyzing() {
		t.Error("Analyzing() = true after failed analysis")
	}
	if s.Err() != serr {
		t.Errorf("Err() = %v, want %v", s.Err(), serr)
	}
}

func TestReconcile_MalformedIsEmptyResult(t *testing.T) {
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			return nil, provider.ErrMalformedResponse
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)

	s.Reconcile(context.Background())
	if s.Err() == nil || s.Err().Kind != KindEmptyResult {
		t.Errorf("Err() = %v, want empty_result kind", s.Err())
	}
}

func TestAutoMode_Retriggers(t *testing.T) {
	p := &providertest.Provider{}
	s, _ := newTestSession(t, p)
	ctx := context.Background()

	if err := s.SetAutoMode(ctx, true); err != nil {
		t.Fatalf("SetAutoMode() error = %v", err)
	}
	s.SetSubject(ctx, testImage(t, "subject"))
	if p.Calls("analyze") != 0 {
		t.Fatalf("analyze calls = %d before reference, want 0", p.Calls("analyze"))
	}
	s.SetReference(ctx, testImage(t, "reference"))
	if p.Calls("analyze") != 1 {
		t.Errorf("analyze calls = %d, want 1", p.Calls("analyze"))
	}
	s.SetReference(ctx, testImage(t, "other"))
	if p.Calls("analyze") != 2 {
		t.Errorf("analyze calls = %d, want 2", p.Calls("analyze"))
	}

	// already on: no extra run
	s.SetAutoMode(ctx, true)
	if p.Calls("analyze") != 2 {
		t.Errorf("analyze calls = %d after repeated enable, want 2", p.Calls("analyze"))
	}
}

func TestAutoModeOff_KeepsSelection(t *testing.T) {
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			return models.SuggestionResult{models.CategoryLighting: {"lighting_golden_hour"}}, nil
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)
	ctx := context.Background()

	s.SetAutoMode(ctx, true)
	if !s.Suggestions().Has(models.CategoryLighting, "lighting_golden_hour") {
		t.Fatalf("Suggestions() = %v, want golden hour annotated", s.Suggestions())
	}

	s.SetAutoMode(ctx, false)
	if s.Suggestions() != nil {
		t.Errorf("Suggestions() = %v, want nil", s.Suggestions())
	}
	if got := selectionIDs(s, models.CategoryLighting); !slices.Equal(got, []string{"lighting_golden_hour"}) {
		t.Errorf("lighting selection = %v, want kept", got)
	}
}

func TestToggle_ExitsAutoMode(t *testing.T) {
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			return models.SuggestionResult{models.CategoryCamera: {"camera_dslr"}}, nil
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)
	s.SetAutoMode(context.Background(), true)

	if _, err := s.Toggle(models.CategoryLighting, "lighting_softbox"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if s.AutoMode() {
		t.Error("AutoMode() = true after manual toggle")
	}
	if s.Suggestions() != nil {
		t.Errorf("Suggestions() = %v, want nil", s.Suggestions())
	}
	if got := selectionIDs(s, models.CategoryCamera); !slices.Equal(got, []string{"camera_dslr"}) {
		t.Errorf("camera selection = %v, want applied suggestion kept", got)
	}
	if p.Calls("analyze") != 1 {
		t.Errorf("analyze calls = %d, want 1", p.Calls("analyze"))
	}
}

func TestToggle_UnknownPreset(t *testing.T) {
	s, _ := newTestSession(t, &providertest.Provider{})

	_, err := s.Toggle(models.CategoryCamera, "camera_pinhole")
	if !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("Toggle() error = %v, want %v", err, ErrUnknownPreset)
	}
	if s.Err() == nil || s.Err().Kind != KindValidation {
		t.Errorf("Err() = %v, want validation error", s.Err())
	}
}

func TestReconcile_SupersededByAutoOff(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			close(started)
			<-release
			return models.SuggestionResult{models.CategoryCamera: {"camera_dslr"}}, nil
		},
	}
	s, _ := newTestSession(t, p)
	ctx := context.Background()
	s.SetSubject(ctx, testImage(t, "subject"))
	s.SetAutoMode(ctx, true)

	ref := testImage(t, "reference")
	done := make(chan error, 1)
	go func() { done <- s.SetReference(ctx, ref) }()
	<-started

	if !s.Analyzing() {
		t.Fatal("Analyzing() = false while call in flight")
	}
	s.SetAutoMode(ctx, false)
	if s.Analyzing() {
		t.Error("Analyzing() = true after leaving auto mode")
	}

	close(release)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("SetReference() error = %v, want %v", err, ErrSuperseded)
	}
	if got := selectionIDs(s, models.CategoryCamera); len(got) != 0 {
		t.Errorf("camera selection = %v, want stale result ignored", got)
	}
}

func TestReconcile_ManualEditDuringFlightDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			close(started)
			<-release
			return models.SuggestionResult{
				models.CategoryCamera:   {"camera_cinematic"},
				models.CategoryLighting: {},
			}, nil
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Reconcile(ctx) }()
	<-started

	s.Toggle(models.CategoryLighting, "lighting_softbox")
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if got := selectionIDs(s, models.CategoryLighting); len(got) != 0 {
		t.Errorf("lighting selection = %v, want manual edit discarded", got)
	}
	if got := selectionIDs(s, models.CategoryCamera); !slices.Equal(got, []string{"camera_cinematic"}) {
		t.Errorf("camera selection = %v, want [camera_cinematic]", got)
	}
}

func TestGenerate_NoSubject(t *testing.T) {
	p := &providertest.Provider{}
	s, log := newTestSession(t, p)

	art, err := s.Generate(context.Background())
	if art != nil {
		t.Errorf("Generate() artifact = %v, want nil", art)
	}
	if !errors.Is(err, ErrNoSubject) {
		t.Errorf("Generate() error = %v, want %v", err, ErrNoSubject)
	}
	if s.Err() == nil || s.Err().Kind != KindValidation {
		t.Errorf("Err() = %v, want validation", s.Err())
	}
	if s.Err().Message != "Please upload a product image." {
		t.Errorf("Message = %q", s.Err().Message)
	}
	if p.Calls("generate") != 0 {
		t.Errorf("generate calls = %d, want 0", p.Calls("generate"))
	}

	want := []Phase{PhaseValidating, PhaseFailed, PhaseIdle}
	if got := log.phases(MachineGenerate); !slices.Equal(got, want) {
		t.Errorf("phases = %v, want %v", got, want)
	}
}

func TestGenerate_Offline(t *testing.T) {
	p := &providertest.Provider{}
	s := New(&Config{Provider: p, Network: netcheck.Static(false), Logger: zerolog.Nop()})
	s.SetSubject(context.Background(), testImage(t, "subject"))

	_, err := s.Generate(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Errorf("Generate() error = %v, want %v", err, ErrOffline)
	}
	if p.Calls("generate") != 0 {
		t.Errorf("generate calls = %d, want 0", p.Calls("generate"))
	}
	if s.GenerationPhase() != PhaseIdle {
		t.Errorf("GenerationPhase() = %v, want idle", s.GenerationPhase())
	}
}

func TestGenerate_Success(t *testing.T) {
	p := &providertest.Provider{}
	var events []ArtifactEvent
	log := &transitionLog{}
	s := New(&Config{
		Provider:     p,
		Logger:       zerolog.Nop(),
		OnTransition: log.add,
		OnArtifact:   func(_ context.Context, ev ArtifactEvent) { events = append(events, ev) },
	})
	ctx := context.Background()
	s.SetSubject(ctx, testImage(t, "subject"))
	s.Toggle(models.CategoryCamera, "camera_dslr")
	s.SetAspectRatio(models.AspectStory)
	want := s.ComposePrompt()

	art, err := s.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if string(art.Data) != "generated" {
		t.Errorf("artifact data = %q, want %q", art.Data, "generated")
	}
	if s.Artifact() == nil {
		t.Fatal("Artifact() = nil after success")
	}

	req := p.LastRequest()
	if req.Prompt != want {
		t.Error("request prompt differs from ComposePrompt()")
	}
	if req.AspectRatio != models.AspectStory {
		t.Errorf("AspectRatio = %v, want %v", req.AspectRatio, models.AspectStory)
	}
	if req.Reference != nil {
		t.Error("Reference should be nil")
	}

	wantPhases := []Phase{PhaseValidating, PhaseInFlight, PhaseSucceeded, PhaseIdle}
	if got := log.phases(MachineGenerate); !slices.Equal(got, wantPhases) {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Operation != "generate" {
		t.Errorf("Operation = %q, want generate", events[0].Operation)
	}
	if !slices.Equal(events[0].PresetIDs[models.CategoryCamera], []string{"camera_dslr"}) {
		t.Errorf("PresetIDs = %v", events[0].PresetIDs)
	}
}

func TestGenerate_FailureKeepsArtifact(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantMsg  string
	}{
		{"collaborator", fmt.Errorf("%w: 500", provider.ErrCollaborator), KindCollaborator, msgGenerateFailed},
		{"no image", provider.ErrNoImage, KindEmptyResult, msgGenerateEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fail := false
			p := &providertest.Provider{
				GenerateFunc: func(context.Context, *provider.GenerateRequest) (*models.Artifact, error) {
					if fail {
						return nil, tt.err
					}
					return &models.Artifact{Data: []byte("first"), MIMEType: "image/png"}, nil
				},
			}
			s, _ := newTestSession(t, p)
			ctx := context.Background()
			s.SetSubject(ctx, testImage(t, "subject"))
			if _, err := s.Generate(ctx); err != nil {
				t.Fatalf("first Generate() error = %v", err)
			}

			fail = true
			_, err := s.Generate(ctx)
			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("Generate() error = %v, want *Error", err)
			}
			if serr.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", serr.Kind, tt.wantKind)
			}
			if serr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", serr.Message, tt.wantMsg)
			}
			if got := string(s.Artifact().Data); got != "first" {
				t.Errorf("Artifact() = %q, want previous artifact", got)
			}
			if s.GenerationPhase() != PhaseIdle {
				t.Errorf("GenerationPhase() = %v, want idle", s.GenerationPhase())
			}
		})
	}
}

func TestGenerate_NilArtifactIsEmptyResult(t *testing.T) {
	p := &providertest.Provider{
		GenerateFunc: func(context.Context, *provider.GenerateRequest) (*models.Artifact, error) {
			return nil, nil
		},
	}
	s, _ := newTestSession(t, p)
	s.SetSubject(context.Background(), testImage(t, "subject"))

	s.Generate(context.Background())
	if s.Err() == nil || s.Err().Kind != KindEmptyResult {
		t.Errorf("Err() = %v, want empty_result", s.Err())
	}
}

func TestGenerate_RejectedWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &providertest.Provider{
		GenerateFunc: func(context.Context, *provider.GenerateRequest) (*models.Artifact, error) {
			close(started)
			<-release
			return &models.Artifact{Data: []byte("ok"), MIMEType: "image/png"}, nil
		},
	}
	s, _ := newTestSession(t, p)
	ctx := context.Background()
	s.SetSubject(ctx, testImage(t, "subject"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(ctx)
		done <- err
	}()
	<-started

	if _, err := s.Generate(ctx); !errors.Is(err, ErrGenerationInFlight) {
		t.Errorf("second Generate() error = %v, want %v", err, ErrGenerationInFlight)
	}
	if s.GenerationPhase() != PhaseInFlight {
		t.Errorf("GenerationPhase() = %v, want in_flight", s.GenerationPhase())
	}
	if _, err := s.Upscale(ctx, models.UpscaleHD); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Upscale() error = %v, want %v", err, ErrNoArtifact)
	}

	if s.Err() != nil {
		t.Errorf("Err() = %v while the first generation runs, want nil", s.Err())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if p.Calls("generate") != 1 {
		t.Errorf("generate calls = %d, want 1", p.Calls("generate"))
	}
	if s.Artifact() == nil {
		t.Fatal("Artifact() = nil after success")
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v after success, want nil", s.Err())
	}
	if st := s.Status(ctx); st.Error != nil {
		t.Errorf("Status().Error = %v, want nil", st.Error)
	}
}

func TestReconcile_ManualToggleDuringAnalysis(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			close(started)
			<-release
			result := models.SuggestionResult{}
			for _, c := range models.Categories() {
				result[c] = []string{}
			}
			result[models.CategoryCamera] = []string{"camera_cinematic"}
			return result, nil
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.SetAutoMode(ctx, true) }()
	<-started

	if _, err := s.Toggle(models.CategoryLighting, "lighting_softbox"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if s.AutoMode() {
		t.Error("AutoMode() = true after a manual toggle")
	}
	if !s.Analyzing() {
		t.Error("Analyzing() = false, the pending analysis should keep running")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("SetAutoMode() error = %v", err)
	}
	if got := s.Selections().Get(models.CategoryCamera); len(got) != 1 || got[0].ID != "camera_cinematic" {
		t.Errorf("camera = %v, want [camera_cinematic]", got)
	}
	if got := s.Selections().Get(models.CategoryLighting); len(got) != 0 {
		t.Errorf("lighting = %v, want the manual edit replaced", got)
	}
	if s.Suggestions() != nil {
		t.Errorf("Suggestions() = %v, want nil outside auto mode", s.Suggestions())
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.Err())
	}
}

func TestGenerate_RejectedWhileAnalyzing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &providertest.Provider{
		AnalyzeFunc: func(context.Context, *models.Image, *models.Image) (models.SuggestionResult, error) {
			close(started)
			<-release
			return models.SuggestionResult{}, nil
		},
	}
	s, _ := newTestSession(t, p)
	withImages(t, s)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Reconcile(ctx) }()
	<-started

	if _, err := s.Generate(ctx); !errors.Is(err, ErrAnalysisInFlight) {
		t.Errorf("Generate() error = %v, want %v", err, ErrAnalysisInFlight)
	}
	if s.Status(ctx).CanGenerate {
		t.Error("CanGenerate = true while analyzing")
	}
	close(release)
	<-done
	if !s.Status(ctx).CanGenerate {
		t.Error("CanGenerate = false after analysis finished")
	}
}

func TestGenerate_StaleAfterReset(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &providertest.Provider{
		GenerateFunc: func(context.Context, *provider.GenerateRequest) (*models.Artifact, error) {
			close(started)
			<-release
			return &models.Artifact{Data: []byte("late"), MIMEType: "image/png"}, nil
		},
	}
	s, _ := newTestSession(t, p)
	ctx := context.Background()
	s.SetSubject(ctx, testImage(t, "subject"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Generate(ctx)
		done <- err
	}()
	<-started
	s.Reset()
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("Generate() error = %v, want %v", err, ErrSuperseded)
	}
	if s.Artifact() != nil {
		t.Error("Artifact() set by a superseded response")
	}
	if s.GenerationPhase() != PhaseIdle {
		t.Errorf("GenerationPhase() = %v, want idle", s.GenerationPhase())
	}
}

func generated(t *testing.T, p *providertest.Provider) (*Session, *transitionLog) {
	t.Helper()
	s, log := newTestSession(t, p)
	ctx := context.Background()
	s.SetSubject(ctx, testImage(t, "subject"))
	if _, err := s.Generate(ctx); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return s, log
}

func TestUpscale_NoArtifact(t *testing.T) {
	p := &providertest.Provider{}
	s, log := newTestSession(t, p)

	_, err := s.Upscale(context.Background(), models.UpscaleHD)
	if !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Upscale() error = %v, want %v", err, ErrNoArtifact)
	}
	if p.Calls("upscale") != 0 {
		t.Errorf("upscale calls = %d, want 0", p.Calls("upscale"))
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, want nil", s.Err())
	}
	if got := log.phases(MachineUpscale); len(got) != 0 {
		t.Errorf("phases = %v, want none", got)
	}
}

func TestUpscale_FailureKeepsArtifact(t *testing.T) {
	p := &providertest.Provider{
		UpscaleFunc: func(context.Context, *models.Artifact, models.UpscaleTarget) (*models.Artifact, error) {
			return nil, fmt.Errorf("%w: quota", provider.ErrCollaborator)
		},
	}
	s, log := generated(t, p)
	before := s.Artifact()

	_, err := s.Upscale(context.Background(), models.UpscaleHD)
	if err == nil {
		t.Fatal("Upscale() error = nil")
	}
	if got := s.Artifact(); string(got.Data) != string(before.Data) || got.MIMEType != before.MIMEType {
		t.Errorf("Artifact() = %q, want pre-upscale %q", got.Data, before.Data)
	}
	if s.Err() == nil || s.Err().Kind != KindCollaborator || s.Err().Op != "upscale" {
		t.Errorf("Err() = %+v, want upscale collaborator error", s.Err())
	}
	if phase, _ := s.UpscalePhase(); phase != PhaseIdle {
		t.Errorf("UpscalePhase() = %v, want idle", phase)
	}

	want := []Phase{PhaseInFlight, PhaseFailed, PhaseIdle}
	if got := log.phases(MachineUpscale); !slices.Equal(got, want) {
		t.Errorf("phases = %v, want %v", got, want)
	}
}

func TestUpscale_EmptyResultMessage(t *testing.T) {
	p := &providertest.Provider{
		UpscaleFunc: func(context.Context, *models.Artifact, models.UpscaleTarget) (*models.Artifact, error) {
			return nil, provider.ErrNoImage
		},
	}
	s, _ := generated(t, p)

	s.Upscale(context.Background(), models.Upscale4K)
	if s.Err() == nil {
		t.Fatal("Err() = nil")
	}
	if s.Err().Message != "Failed to upscale to 4k." {
		t.Errorf("Message = %q, want %q", s.Err().Message, "Failed to upscale to 4k.")
	}
	if s.Err().Kind != KindEmptyResult {
		t.Errorf("Kind = %v, want %v", s.Err().Kind, KindEmptyResult)
	}
}

func TestUpscale_Success(t *testing.T) {
	var got []models.UpscaleTarget
	p := &providertest.Provider{
		UpscaleFunc: func(_ context.Context, a *models.Artifact, target models.UpscaleTarget) (*models.Artifact, error) {
			got = append(got, target)
			if string(a.Data) != "generated" {
				t.Errorf("upscale source = %q, want generated", a.Data)
			}
			return &models.Artifact{Data: []byte("big"), MIMEType: "image/jpeg"}, nil
		},
	}
	s, _ := generated(t, p)

	art, err := s.Upscale(context.Background(), models.UpscaleHD)
	if err != nil {
		t.Fatalf("Upscale() error = %v", err)
	}
	if string(art.Data) != "big" || string(s.Artifact().Data) != "big" {
		t.Errorf("artifact not replaced: %q", s.Artifact().Data)
	}
	if !slices.Equal(got, []models.UpscaleTarget{models.UpscaleHD}) {
		t.Errorf("targets = %v", got)
	}
}

func TestUpscale_InvalidTarget(t *testing.T) {
	p := &providertest.Provider{}
	s, _ := generated(t, p)

	_, err := s.Upscale(context.Background(), models.UpscaleTarget("8k"))
	if !errors.Is(err, models.ErrInvalidTarget) {
		t.Errorf("Upscale() error = %v, want %v", err, models.ErrInvalidTarget)
	}
	if p.Calls("upscale") != 0 {
		t.Errorf("upscale calls = %d, want 0", p.Calls("upscale"))
	}
}

func TestUpscale_ExcludesGenerate(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &providertest.Provider{
		UpscaleFunc: func(context.Context, *models.Artifact, models.UpscaleTarget) (*models.Artifact, error) {
			close(started)
			<-release
			return &models.Artifact{Data: []byte("big"), MIMEType: "image/png"}, nil
		},
	}
	s, _ := generated(t, p)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := s.Upscale(ctx, models.UpscaleHD)
		done <- err
	}()
	<-started

	if _, err := s.Generate(ctx); !errors.Is(err, ErrUpscaleInFlight) {
		t.Errorf("Generate() error = %v, want %v", err, ErrUpscaleInFlight)
	}
	if _, err := s.Upscale(ctx, models.Upscale4K); !errors.Is(err, ErrUpscaleInFlight) {
		t.Errorf("Upscale() error = %v, want %v", err, ErrUpscaleInFlight)
	}
	st := s.Status(ctx)
	if st.CanGenerate || st.CanUpscale {
		t.Errorf("Status() CanGenerate=%v CanUpscale=%v, want both false", st.CanGenerate, st.CanUpscale)
	}
	if st.UpscaleTarget != models.UpscaleHD {
		t.Errorf("UpscaleTarget = %v, want hd", st.UpscaleTarget)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v after busy rejections, want nil", s.Err())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Upscale() error = %v", err)
	}
	if p.Calls("generate") != 1 || p.Calls("upscale") != 1 {
		t.Errorf("calls generate=%d upscale=%d, want 1 and 1", p.Calls("generate"), p.Calls("upscale"))
	}
}

func TestSuggestBriefs(t *testing.T) {
	p := &providertest.Provider{}
	s, _ := newTestSession(t, p)
	ctx := context.Background()

	if _, err := s.SuggestBriefs(ctx); !errors.Is(err, ErrNoSubject) {
		t.Errorf("SuggestBriefs() error = %v, want %v", err, ErrNoSubject)
	}
	if p.Calls("briefs") != 0 {
		t.Errorf("briefs calls = %d, want 0", p.Calls("briefs"))
	}

	s.SetSubject(ctx, testImage(t, "subject"))
	briefs, err := s.SuggestBriefs(ctx)
	if err != nil {
		t.Fatalf("SuggestBriefs() error = %v", err)
	}
	if len(briefs) != provider.BriefCount {
		t.Fatalf("len(briefs) = %d, want %d", len(briefs), provider.BriefCount)
	}

	b, err := s.UseBrief(1)
	if err != nil {
		t.Fatalf("UseBrief() error = %v", err)
	}
	if s.Brief() != b.Text {
		t.Errorf("Brief() = %q, want %q", s.Brief(), b.Text)
	}
	if _, err := s.UseBrief(5); !errors.Is(err, ErrNoSuchBrief) {
		t.Errorf("UseBrief(5) error = %v, want %v", err, ErrNoSuchBrief)
	}
}

func TestSuggestBriefs_WrongCount(t *testing.T) {
	p := &providertest.Provider{
		BriefsFunc: func(context.Context, *models.Image, *models.Image) ([]models.Brief, error) {
			return nil, fmt.Errorf("%w: got 2", provider.ErrBriefCount)
		},
	}
	s, _ := newTestSession(t, p)
	s.SetSubject(context.Background(), testImage(t, "subject"))

	_, err := s.SuggestBriefs(context.Background())
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("SuggestBriefs() error = %v, want *Error", err)
	}
	if serr.Kind != KindEmptyResult || serr.Message != msgBriefsFailed {
		t.Errorf("error = %v/%q, want empty_result/%q", serr.Kind, serr.Message, msgBriefsFailed)
	}
	if s.Briefs() != nil {
		t.Errorf("Briefs() = %v, want nil", s.Briefs())
	}
}

func TestComposePrompt_CompositeFollowsAutoMode(t *testing.T) {
	s, _ := newTestSession(t, &providertest.Provider{})
	ctx := context.Background()
	withImages(t, s)

	if got := s.ComposePrompt(); !strings.Contains(got, prompt.CompositeOffClause) {
		t.Error("manual mode prompt missing strict-adherence clause")
	}
	s.SetAutoMode(ctx, true)
	got := s.ComposePrompt()
	if !strings.Contains(got, prompt.CompositeOnClause) || strings.Contains(got, prompt.CompositeOffClause) {
		t.Error("auto mode prompt should carry only the creative-freedom clause")
	}
	if !strings.Contains(got, prompt.NoCompositeClause) {
		t.Error("prompt with reference missing no-composite clause")
	}
}

func TestComposePrompt_NoneMockup(t *testing.T) {
	s, _ := newTestSession(t, &providertest.Provider{})
	s.SetSubject(context.Background(), testImage(t, "subject"))
	if _, err := s.Toggle(models.CategoryMockup, "mockup_marble"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if p := s.Params(); p.Mockup == nil || p.Mockup.ID != "mockup_marble" {
		t.Fatalf("Params().Mockup = %v, want mockup_marble", p.Mockup)
	}

	s.Selections().ReplaceAll(models.CategoryMockup, []models.Preset{{ID: models.NoneID}})

	if p := s.Params(); p.Mockup != nil {
		t.Errorf("Params().Mockup = %v, want nil for none sentinel", p.Mockup)
	}
	if text := s.ComposePrompt(); strings.Contains(text, "Marble") {
		t.Errorf("ComposePrompt() still mentions the mockup:\n%s", text)
	}
}

func TestSetExport_Invalid(t *testing.T) {
	s, _ := newTestSession(t, &providertest.Provider{})

	err := s.SetAspectRatio(models.AspectRatio("2:1"))
	if !errors.Is(err, models.ErrInvalidAspectRatio) {
		t.Errorf("SetAspectRatio() error = %v, want %v", err, models.ErrInvalidAspectRatio)
	}
	if s.Export() != models.DefaultExportSettings() {
		t.Errorf("Export() = %v, want defaults", s.Export())
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestSession(t, &providertest.Provider{})
	ctx := context.Background()

	st := s.Status(ctx)
	if st.CanGenerate || st.CanUpscale || st.HasSubject {
		t.Errorf("empty Status() = %+v", st)
	}

	s.SetSubject(ctx, testImage(t, "subject"))
	s.SetTransparent(true)
	st = s.Status(ctx)
	if !st.CanGenerate {
		t.Error("CanGenerate = false with subject and online")
	}
	if st.SubjectDigest == "" {
		t.Error("SubjectDigest empty")
	}
	if !st.Export.Transparent {
		t.Error("Export.Transparent = false")
	}

	s.Generate(ctx)
	if !s.Status(ctx).CanUpscale {
		t.Error("CanUpscale = false with artifact")
	}

	s.Reset()
	st = s.Status(ctx)
	if st.HasSubject || st.HasArtifact || st.Export.Transparent {
		t.Errorf("Status() after Reset = %+v", st)
	}
}
