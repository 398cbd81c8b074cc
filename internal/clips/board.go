package clips

import (
	"fmt"

	"github.com/clipdesk/clipdesk/internal/backend"
)

// Group is one titled movement section of the board.
type Group struct {
	Movement string  `json:"movement"`
	Clips    []*Clip `json:"clips"`
}

// Board is the preview container. It is not safe for concurrent use; the
// controller serialises access.
type Board struct {
	generation int
	groups     []Group
	byID       map[string]*Clip
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{byID: make(map[string]*Clip)}
}

// Render replaces the board's entire contents with movements. clipURL maps
// a gif path to its base download URL. Ids are unique across renders so
// late results for a replaced clip never land on a new one.
func (b *Board) Render(movements backend.Movements, clipURL func(path string) string) []*Clip {
	b.generation++
	b.groups = make([]Group, 0, len(movements))
	b.byID = make(map[string]*Clip, movements.SegmentCount())

	all := make([]*Clip, 0, movements.SegmentCount())
	for _, ms := range movements {
		g := Group{Movement: ms.Movement, Clips: make([]*Clip, 0, len(ms.Segments))}
		for i, seg := range ms.Segments {
			id := fmt.Sprintf("r%d-%03d", b.generation, len(all)+1)
			c := newClip(id, ms.Movement, i, seg, clipURL(seg.GifPath))
			g.Clips = append(g.Clips, c)
			b.byID[id] = c
			all = append(all, c)
		}
		b.groups = append(b.groups, g)
	}
	return all
}

// Get returns the live clip record for id.
func (b *Board) Get(id string) (*Clip, error) {
	c, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClip, id)
	}
	return c, nil
}

// FindByName returns the first clip with the given display name.
func (b *Board) FindByName(name string) (*Clip, bool) {
	for _, g := range b.groups {
		for _, c := range g.Clips {
			if c.Name == name {
				return c, true
			}
		}
	}
	return nil, false
}

// Clips returns the live records in board order.
func (b *Board) Clips() []*Clip {
	out := make([]*Clip, 0, len(b.byID))
	for _, g := range b.groups {
		out = append(out, g.Clips...)
	}
	return out
}

// Len returns the number of clips on the board.
func (b *Board) Len() int {
	return len(b.byID)
}

// Snapshot returns a deep copy of the groups for projection.
func (b *Board) Snapshot() []Group {
	out := make([]Group, len(b.groups))
	for i, g := range b.groups {
		cp := Group{Movement: g.Movement, Clips: make([]*Clip, len(g.Clips))}
		for j, c := range g.Clips {
			clone := *c
			cp.Clips[j] = &clone
		}
		out[i] = cp
	}
	return out
}

// SetSelected toggles a clip's download checkbox.
func (b *Board) SetSelected(id string, selected bool) error {
	c, err := b.Get(id)
	if err != nil {
		return err
	}
	c.Selected = selected
	return nil
}

// SelectedCount returns how many clips are checked.
func (b *Board) SelectedCount() int {
	n := 0
	for _, c := range b.byID {
		if c.Selected {
			n++
		}
	}
	return n
}

// DownloadEnabled reports whether the download control is enabled: true iff
// at least one clip is checked.
func (b *Board) DownloadEnabled() bool {
	return b.SelectedCount() > 0
}

// Selections returns the download request body for the checked clips in
// board order.
func (b *Board) Selections() []backend.Selection {
	var out []backend.Selection
	for _, c := range b.Clips() {
		if c.Selected {
			out = append(out, c.Selection())
		}
	}
	return out
}

// SelectedClips returns copies of the checked clips in board order.
func (b *Board) SelectedClips() []Clip {
	var out []Clip
	for _, c := range b.Clips() {
		if c.Selected {
			out = append(out, *c)
		}
	}
	return out
}
