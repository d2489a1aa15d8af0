/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package enumerator

import (
	"time"

	"github.com/friendsincode/grimnir_playout/internal/collection"
	"github.com/friendsincode/grimnir_playout/internal/models"
	"github.com/friendsincode/grimnir_playout/internal/shuffle"
)

// maxPlaylistLap caps the simulated lap used to size a playlist whose
// children never visit every item.
const maxPlaylistLap = 100_000

// PlaylistEntry is one resolved playlist entry.
type PlaylistEntry struct {
	Key                   collection.Key
	PlayAll               bool
	IncludeInProgramGuide bool
	Items                 []models.MediaItem
	// New builds the child enumerator for the entry's content from a seed.
	// Single-item entries ignore it.
	New func(seed int32) Enumerator
}

// Playlist plays its entries in turn. Entries sharing a key share one child.
// A play-all entry stays current until its child finishes a lap. The
// playlist finishes a lap once every distinct item has played and the entry
// order has wrapped; the next lap uses a new seed and rebuilt children.
type Playlist struct {
	entries        []PlaylistEntry
	shuffleEntries bool
	guideIDs       map[int]struct{}
	allIDs         []int
	minDuration    time.Duration
	hasMinDuration bool

	order      []int
	children   []Enumerator
	remaining  map[int]struct{}
	entryIndex int
	state      State
	count      int

	// simulating marks copies used to size a lap or to peek.
	simulating bool
}

// NewPlaylist creates a Playlist enumerator.
func NewPlaylist(entries []PlaylistEntry, state State, shuffleEntries bool) *Playlist {
	p := newPlaylist(entries, shuffleEntries)
	p.ResetState(state)
	return p
}

func newPlaylist(entries []PlaylistEntry, shuffleEntries bool) *Playlist {
	p := &Playlist{
		entries:        entries,
		shuffleEntries: shuffleEntries,
		guideIDs:       make(map[int]struct{}),
	}
	seen := make(map[int]struct{})
	var all []models.MediaItem
	for _, e := range entries {
		for _, item := range e.Items {
			if e.IncludeInProgramGuide {
				p.guideIDs[item.ID] = struct{}{}
			}
			if _, ok := seen[item.ID]; !ok {
				seen[item.ID] = struct{}{}
				p.allIDs = append(p.allIDs, item.ID)
			}
			all = append(all, item)
		}
	}
	p.minDuration, p.hasMinDuration = minimumDuration(all)
	return p
}

func (p *Playlist) lapLength(seed int32) int {
	sim := newPlaylist(p.entries, p.shuffleEntries)
	sim.simulating = true
	sim.count = maxPlaylistLap
	sim.build(seed)
	if len(sim.children) == 0 {
		return 0
	}
	n := 0
	for {
		sim.MoveNext()
		n++
		if sim.state.Index == 0 {
			return n
		}
	}
}

// build starts a lap from seed.
func (p *Playlist) build(seed int32) {
	p.state = State{Seed: seed}
	p.entryIndex = 0

	p.order = make([]int, len(p.entries))
	for i := range p.order {
		p.order[i] = i
	}
	if p.shuffleEntries {
		p.order = shuffle.Shuffle(p.order, shuffle.New(seed))
	}

	shared := make(map[collection.Key]Enumerator)
	p.children = make([]Enumerator, 0, len(p.order))
	for _, i := range p.order {
		e := p.entries[i]
		child, ok := shared[e.Key]
		if !ok {
			switch {
			case len(e.Items) == 1:
				child = NewSingleItem(e.Items[0], seed)
			case e.New != nil:
				child = e.New(seed)
			default:
				child = NewChronological(e.Items, State{Seed: seed})
			}
			shared[e.Key] = child
		}
		p.children = append(p.children, child)
	}

	p.remaining = make(map[int]struct{}, len(p.allIDs))
	for _, id := range p.allIDs {
		p.remaining[id] = struct{}{}
	}
}

// ResetState implements Enumerator by replaying from the start of the lap.
func (p *Playlist) ResetState(state State) {
	if !p.simulating {
		p.count = p.lapLength(state.Seed)
	}
	p.build(state.Seed)
	if state.Index <= 0 || int(state.Index) >= p.count {
		return
	}
	for p.state.Index < state.Index {
		p.MoveNext()
	}
}

func (p *Playlist) Current() (*models.MediaItem, bool) {
	if len(p.children) == 0 {
		return nil, false
	}
	return p.children[p.entryIndex].Current()
}

func (p *Playlist) MoveNext() {
	if len(p.children) == 0 {
		return
	}
	if item, ok := p.Current(); ok {
		delete(p.remaining, item.ID)
	}

	child := p.children[p.entryIndex]
	child.MoveNext()
	if !p.entries[p.order[p.entryIndex]].PlayAll || child.State().Index == 0 {
		p.entryIndex = (p.entryIndex + 1) % len(p.children)
	}

	p.state.Index++
	if p.entryIndex == 0 && (len(p.remaining) == 0 || int(p.state.Index) >= p.count) {
		next := shuffle.New(p.state.Seed).Next()
		if !p.simulating {
			p.count = p.lapLength(next)
		}
		p.build(next)
	}
}

func (p *Playlist) State() State { return p.state }

// Count is the number of items in one playlist lap.
func (p *Playlist) Count() int { return p.count }

func (p *Playlist) MinimumDuration() (time.Duration, bool) {
	return p.minDuration, p.hasMinDuration
}

// CurrentIncludeInProgramGuide implements GuideAware.
func (p *Playlist) CurrentIncludeInProgramGuide() (bool, bool) {
	item, ok := p.Current()
	if !ok {
		return false, false
	}
	_, include := p.guideIDs[item.ID]
	return include, true
}

// CurrentPlayAllCount returns the lap size of the current entry's child when
// that entry plays all of its items.
func (p *Playlist) CurrentPlayAllCount() (int, bool) {
	if len(p.children) == 0 || !p.entries[p.order[p.entryIndex]].PlayAll {
		return 0, false
	}
	return p.children[p.entryIndex].Count(), true
}

// Peek implements Peeker by replaying a fresh copy to the same position.
func (p *Playlist) Peek(offset int) (*models.MediaItem, bool) {
	if len(p.children) == 0 {
		return nil, false
	}
	sim := newPlaylist(p.entries, p.shuffleEntries)
	sim.simulating = true
	sim.count = p.count
	sim.ResetState(p.state)
	for range offset {
		sim.MoveNext()
	}
	return sim.Current()
}
