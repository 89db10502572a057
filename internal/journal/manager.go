package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manash/prodstudio/internal/image"
	"github.com/manash/prodstudio/internal/studio"
)

var (
	ErrNoSession       = errors.New("no active session")
	ErrSessionNotFound = errors.New("session not found")
)

// Manager records the renders of one studio session. Safe for concurrent use.
type Manager struct {
	store    *Store
	imageDir string
	model    string
	saver    *image.Saver
	now      func() time.Time

	mu      sync.Mutex
	current *Session
	last    *Render
}

// NewManager stores image files below imageDir/<session id>.
func NewManager(store *Store, imageDir, model string) *Manager {
	return &Manager{
		store:    store,
		imageDir: imageDir,
		model:    model,
		saver:    image.NewSaver(),
		now:      time.Now,
	}
}

func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) LastRender() *Render {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) StartNew(ctx context.Context, name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx, name)
}

func (m *Manager) startLocked(ctx context.Context, name string) (*Session, error) {
	now := m.now()
	sess := &Session{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Model:     m.model,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := os.MkdirAll(m.sessionDir(sess.ID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	m.current = sess
	m.last = nil
	return sess, nil
}

func (m *Manager) sessionDir(id string) string {
	return filepath.Join(m.imageDir, id)
}

func (m *Manager) Load(ctx context.Context, id string) error {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}

	var last *Render
	if sess.CurrentRenderID != "" {
		last, err = m.store.GetRender(ctx, sess.CurrentRenderID)
		if err != nil {
			return fmt.Errorf("failed to load last render: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = sess
	m.last = last
	return nil
}

// Record writes the artifact to disk and appends a render row.
func (m *Manager) Record(ctx context.Context, ev studio.ArtifactEvent) (*Render, error) {
	if ev.Artifact == nil {
		return nil, fmt.Errorf("no artifact to record")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		if _, err := m.startLocked(ctx, ""); err != nil {
			return nil, err
		}
	}

	r := &Render{
		ID:        uuid.New().String(),
		SessionID: m.current.ID,
		Operation: ev.Operation,
		Prompt:    ev.Prompt,
		Model:     m.current.Model,
		MIMEType:  ev.Artifact.MIMEType,
		ByteSize:  int64(len(ev.Artifact.Data)),
		Timestamp: m.now(),
		Metadata: RenderMetadata{
			AspectRatio: ev.Export.AspectRatio.String(),
			Transparent: ev.Export.Transparent,
			Composite:   ev.Composite,
			Brief:       ev.Brief,
			Target:      ev.Target.String(),
		},
	}
	if len(ev.PresetIDs) > 0 {
		r.Metadata.Presets = make(map[string][]string, len(ev.PresetIDs))
		for cat, ids := range ev.PresetIDs {
			r.Metadata.Presets[cat.String()] = ids
		}
	}
	if m.last != nil {
		r.ParentID = m.last.ID
	}

	path, err := m.saver.SaveInDir(ev.Artifact, m.sessionDir(m.current.ID), r.ID+"."+ev.Artifact.Extension())
	if err != nil {
		return nil, err
	}
	r.ImagePath = path

	if err := m.store.CreateRender(ctx, r); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to create render: %w", err)
	}

	m.current.CurrentRenderID = r.ID
	m.current.UpdatedAt = r.Timestamp
	if err := m.store.UpdateSession(ctx, m.current); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	m.last = r
	return r, nil
}

// Hook adapts Record to the studio artifact callback. Failures are logged, never surfaced.
func (m *Manager) Hook(logger zerolog.Logger) func(context.Context, studio.ArtifactEvent) {
	return func(ctx context.Context, ev studio.ArtifactEvent) {
		r, err := m.Record(ctx, ev)
		if err != nil {
			logger.Warn().Err(err).Str("operation", ev.Operation).Msg("journal write failed")
			return
		}
		logger.Debug().Str("render", r.ID).Str("path", r.ImagePath).Msg("render recorded")
	}
}

func (m *Manager) History(ctx context.Context) ([]*Render, error) {
	sess := m.Current()
	if sess == nil {
		return nil, nil
	}
	return m.store.ListRenders(ctx, sess.ID)
}

func (m *Manager) ListSessions(ctx context.Context) ([]*Session, error) {
	return m.store.ListSessions(ctx)
}

func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.current != nil && m.current.ID == id {
		m.current = nil
		m.last = nil
	}
	m.mu.Unlock()

	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	return os.RemoveAll(m.sessionDir(id))
}

func (m *Manager) RenameSession(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoSession
	}
	m.current.Name = name
	m.current.UpdatedAt = m.now()
	return m.store.UpdateSession(ctx, m.current)
}

func (m *Manager) RenderCount(ctx context.Context) (int, error) {
	sess := m.Current()
	if sess == nil {
		return 0, nil
	}
	return m.store.CountRenders(ctx, sess.ID)
}

// Stats covers the current session, or every session when none is active.
func (m *Manager) Stats(ctx context.Context) ([]OperationStats, error) {
	id := ""
	if sess := m.Current(); sess != nil {
		id = sess.ID
	}
	return m.store.Stats(ctx, id)
}
