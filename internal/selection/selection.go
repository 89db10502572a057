package selection

import (
	"slices"
	"sync"

	"github.com/manash/prodstudio/pkg/models"
)

// Change describes one manual toggle.
type Change struct {
	Category models.Category
	Preset   models.Preset
	Selected bool
}

// Store holds the ordered, de-duplicated preset selection of every category.
// Only Toggle counts as a manual edit and notifies listeners.
type Store struct {
	mu        sync.Mutex
	sets      map[models.Category][]models.Preset
	listeners []func(Change)
}

func NewStore() *Store {
	return &Store{sets: make(map[models.Category][]models.Preset)}
}

// OnManualChange registers fn to run after every Toggle, outside the store lock.
func (s *Store) OnManualChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Toggle removes the preset when its id is selected and appends it otherwise.
func (s *Store) Toggle(cat models.Category, p models.Preset) []models.Preset {
	s.mu.Lock()
	set := s.sets[cat]
	i := slices.IndexFunc(set, func(q models.Preset) bool { return q.ID == p.ID })

	var next []models.Preset
	if i >= 0 {
		next = slices.Delete(slices.Clone(set), i, i+1)
	} else {
		next = append(slices.Clone(set), p)
	}
	s.sets[cat] = next
	result := slices.Clone(next)
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	change := Change{Category: cat, Preset: p, Selected: i < 0}
	for _, fn := range listeners {
		fn(change)
	}
	return result
}

// ReplaceAll overwrites a category's selection. Repeated ids keep their first occurrence.
func (s *Store) ReplaceAll(cat models.Category, presets []models.Preset) {
	seen := make(map[string]struct{}, len(presets))
	next := make([]models.Preset, 0, len(presets))
	for _, p := range presets {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		next = append(next, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[cat] = next
}

func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cat := range models.Categories() {
		s.sets[cat] = nil
	}
}

// Get returns a copy of the category's selection in selection order.
func (s *Store) Get(cat models.Category) []models.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sets[cat])
}

func (s *Store) Contains(cat models.Category, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.sets[cat], func(p models.Preset) bool { return p.ID == id })
}

// Snapshot copies every category. Categories without a selection map to nil.
func (s *Store) Snapshot() map[models.Category][]models.Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.Category][]models.Preset, len(models.Categories()))
	for _, cat := range models.Categories() {
		out[cat] = slices.Clone(s.sets[cat])
	}
	return out
}

// EffectiveMockup is the first selected mockup, unless that entry is the none sentinel.
func (s *Store) EffectiveMockup() (models.Preset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[models.CategoryMockup]
	if len(set) == 0 || set[0].IsNone() {
		return models.Preset{}, false
	}
	return set[0], true
}

func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.sets {
		if len(set) > 0 {
			return false
		}
	}
	return true
}
