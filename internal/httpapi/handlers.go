package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/manash/prodstudio/internal/image"
	"github.com/manash/prodstudio/internal/security"
	"github.com/manash/prodstudio/internal/studio"
	"github.com/manash/prodstudio/pkg/models"
)

type categoryView struct {
	ID      models.Category `json:"id"`
	Label   string          `json:"label"`
	Presets []models.Preset `json:"presets"`
}

type catalogView struct {
	Version    string         `json:"version"`
	Categories []categoryView `json:"categories"`
}

type errorView struct {
	Kind    string `json:"kind"`
	Op      string `json:"op"`
	Message string `json:"message"`
}

type sessionView struct {
	ID               string                  `json:"id"`
	HasSubject       bool                    `json:"hasSubject"`
	HasReference     bool                    `json:"hasReference"`
	AutoMode         bool                    `json:"autoMode"`
	Analyzing        bool                    `json:"analyzing"`
	SuggestingBriefs bool                    `json:"suggestingBriefs"`
	Generation       string                  `json:"generation"`
	Upscale          string                  `json:"upscale"`
	UpscaleTarget    string                  `json:"upscaleTarget,omitempty"`
	HasArtifact      bool                    `json:"hasArtifact"`
	Online           bool                    `json:"online"`
	CanGenerate      bool                    `json:"canGenerate"`
	CanUpscale       bool                    `json:"canUpscale"`
	Export           models.ExportSettings   `json:"export"`
	Brief            string                  `json:"brief"`
	Selections       map[string][]string     `json:"selections"`
	Suggestions      models.SuggestionResult `json:"suggestions,omitempty"`
	Briefs           []models.Brief          `json:"briefs,omitempty"`
	Error            *errorView              `json:"error,omitempty"`
}

type artifactView struct {
	MIMEType string `json:"mimeType"`
	Bytes    int    `json:"bytes"`
	Prompt   string `json:"prompt,omitempty"`
	URL      string `json:"url"`
}

func (s *Server) view(r *http.Request, sess *studio.Session) sessionView {
	st := sess.Status(r.Context())
	v := sessionView{
		ID:               st.SessionID,
		HasSubject:       st.HasSubject,
		HasReference:     st.HasReference,
		AutoMode:         st.AutoMode,
		Analyzing:        st.Analyzing,
		SuggestingBriefs: st.SuggestingBriefs,
		Generation:       st.Generation.String(),
		Upscale:          st.Upscale.String(),
		UpscaleTarget:    st.UpscaleTarget.String(),
		HasArtifact:      st.HasArtifact,
		Online:           st.Online,
		CanGenerate:      st.CanGenerate,
		CanUpscale:       st.CanUpscale,
		Export:           st.Export,
		Brief:            st.Brief,
		Selections:       make(map[string][]string),
		Suggestions:      sess.Suggestions(),
		Briefs:           sess.Briefs(),
	}
	for cat, presets := range sess.Selections().Snapshot() {
		ids := make([]string, 0, len(presets))
		for _, p := range presets {
			ids = append(ids, p.ID)
		}
		v.Selections[cat.String()] = ids
	}
	if st.Error != nil {
		v.Error = &errorView{Kind: st.Error.Kind.String(), Op: st.Error.Op, Message: st.Error.Message}
	}
	return v
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*studio.Session, bool) {
	sess, err := s.lookup(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.json(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"catalog":  s.catalog.Version(),
		"sessions": s.Len(),
	})
}

func (s *Server) listCatalog(w http.ResponseWriter, _ *http.Request) {
	v := catalogView{Version: s.catalog.Version()}
	for _, cat := range models.Categories() {
		v.Categories = append(v.Categories, categoryView{ID: cat, Label: cat.Label(), Presets: s.catalog.List(cat)})
	}
	s.json(w, http.StatusOK, v)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.create()
	s.logger.Info().Str("session", sess.ID()).Msg("session created")
	s.json(w, http.StatusCreated, s.view(r, sess))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		s.json(w, http.StatusOK, s.view(r, sess))
	}
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.remove(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	sess.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func setImage(r *http.Request, sess *studio.Session, role string, img *models.Image) error {
	switch role {
	case "subject":
		return sess.SetSubject(r.Context(), img)
	default:
		return sess.SetReference(r.Context(), img)
	}
}

func validRole(role string) bool {
	return role == "subject" || role == "reference"
}

// putImage takes the raw image as the request body. ?name= sets the file name.
func (s *Server) putImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	role := chi.URLParam(r, "role")
	if !validRole(role) {
		s.error(w, http.StatusNotFound, "not_found", "unknown image role: "+role)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, image.MaxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.error(w, http.StatusRequestEntityTooLarge, "validation", image.ErrTooLarge.Error())
			return
		}
		s.error(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}

	name := security.SanitizeFilename(r.URL.Query().Get("name"))
	img, err := image.FromBytes(data, name, r.Header.Get("Content-Type"))
	if err != nil {
		s.error(w, http.StatusUnprocessableEntity, "validation", err.Error())
		return
	}

	if err := setImage(r, sess, role, img); err != nil {
		s.fail(w, err)
		return
	}
	s.json(w, http.StatusOK, s.view(r, sess))
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	role := chi.URLParam(r, "role")
	if !validRole(role) {
		s.error(w, http.StatusNotFound, "not_found", "unknown image role: "+role)
		return
	}
	if err := setImage(r, sess, role, nil); err != nil {
		s.fail(w, err)
		return
	}
	s.json(w, http.StatusOK, s.view(r, sess))
}

func (s *Server) togglePreset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	cat, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("%v: %s", err, chi.URLParam(r, "category")))
		return
	}

	selected, err := sess.Toggle(cat, chi.URLParam(r, "presetID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	ids := make([]string, 0, len(selected))
	for _, p := range selected {
		ids = append(ids, p.ID)
	}
	s.json(w, http.StatusOK, map[string]any{
		"category": cat,
		"selected": ids,
		"autoMode": sess.AutoMode(),
	})
}

type autoRequest struct {
	Enabled bool `json:"enabled"`
}

// putAuto blocks until the suggestion request, if one was triggered, finishes.
func (s *Server) putAuto(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req autoRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := sess.SetAutoMode(r.Context(), req.Enabled); err != nil {
		s.fail(w, err)
		return
	}
	s.json(w, http.StatusOK, s.view(r, sess))
}

type exportRequest struct {
	AspectRatio *string `json:"aspectRatio"`
	Transparent *bool   `json:"transparent"`
}

func (s *Server) putExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req exportRequest
	if !s.decode(w, r, &req) {
		return
	}

	e := sess.Export()
	if req.AspectRatio != nil {
		e.AspectRatio = models.AspectRatio(*req.AspectRatio)
	}
	if req.Transparent != nil {
		e.Transparent = *req.Transparent
	}
	if err := sess.SetExport(e); err != nil {
		s.fail(w, err)
		return
	}
	s.json(w, http.StatusOK, sess.Export())
}

type briefRequest struct {
	Text string `json:"text"`
	// Use adopts suggestion n (1-based) instead of Text.
	Use int `json:"use,omitempty"`
}

func (s *Server) putBrief(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req briefRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Use > 0 {
		if _, err := sess.UseBrief(req.Use - 1); err != nil {
			s.error(w, http.StatusUnprocessableEntity, "validation", err.Error())
			return
		}
	} else {
		sess.SetBrief(req.Text)
	}
	s.json(w, http.StatusOK, map[string]string{"brief": sess.Brief()})
}

func (s *Server) suggestBriefs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	briefs, err := sess.SuggestBriefs(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.json(w, http.StatusOK, map[string]any{"briefs": briefs})
}

func (s *Server) getPrompt(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.session(w, r); ok {
		s.json(w, http.StatusOK, map[string]string{"prompt": sess.ComposePrompt()})
	}
}

func artifactURL(id string) string {
	return "/api/sessions/" + id + "/artifact"
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	a, err := sess.Generate(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.json(w, http.StatusOK, artifactView{
		MIMEType: a.MIMEType,
		Bytes:    len(a.Data),
		Prompt:   sess.LastPrompt(),
		URL:      artifactURL(sess.ID()),
	})
}

type upscaleRequest struct {
	Target string `json:"target"`
}

func (s *Server) upscale(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req upscaleRequest
	if !s.decode(w, r, &req) {
		return
	}

	a, err := sess.Upscale(r.Context(), models.UpscaleTarget(strings.ToLower(req.Target)))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.json(w, http.StatusOK, artifactView{
		MIMEType: a.MIMEType,
		Bytes:    len(a.Data),
		URL:      artifactURL(sess.ID()),
	})
}

// getArtifact downloads the current image byte for byte.
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	a := sess.Artifact()
	if a == nil {
		s.error(w, http.StatusNotFound, "not_found", "no image generated yet")
		return
	}

	w.Header().Set("Content-Type", a.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", image.GenerateFilename(a.Extension())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Data)
}
