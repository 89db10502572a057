package batch

import (
	"context"
	"maps"
	"slices"

	"github.com/manash/prodstudio/internal/studio"
	"github.com/manash/prodstudio/pkg/models"
)

// Style is the look applied to a studio session before generating.
type Style struct {
	Presets     map[models.Category][]string
	Brief       string
	AspectRatio models.AspectRatio
	Transparent bool
	Auto        bool
}

// Merge layers o over st. Categories named in o replace those of st.
func (st Style) Merge(o Style) Style {
	out := st
	out.Presets = maps.Clone(st.Presets)
	if len(o.Presets) > 0 && out.Presets == nil {
		out.Presets = make(map[models.Category][]string, len(o.Presets))
	}
	for c, ids := range o.Presets {
		out.Presets[c] = slices.Clone(ids)
	}
	if o.Brief != "" {
		out.Brief = o.Brief
	}
	if o.AspectRatio != "" {
		out.AspectRatio = o.AspectRatio
	}
	out.Transparent = st.Transparent || o.Transparent
	out.Auto = st.Auto || o.Auto
	return out
}

// Apply toggles the presets in category order, then sets export, brief and
// finally auto mode, so manual toggles do not switch it back off.
func (st Style) Apply(ctx context.Context, sess *studio.Session) error {
	for _, c := range models.Categories() {
		for _, id := range st.Presets[c] {
			if _, err := sess.Toggle(c, id); err != nil {
				return err
			}
		}
	}
	if st.AspectRatio != "" {
		if err := sess.SetAspectRatio(st.AspectRatio); err != nil {
			return err
		}
	}
	sess.SetTransparent(st.Transparent)
	if st.Brief != "" {
		sess.SetBrief(st.Brief)
	}
	if st.Auto {
		return sess.SetAutoMode(ctx, true)
	}
	return nil
}
