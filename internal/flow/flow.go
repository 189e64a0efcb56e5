// Package flow holds the state of one voice/search interaction: the
// transcript, extracted tags, selected group and last recommendation.
//
// Every piece of async work takes a Ticket from Begin. Results applied with
// a ticket issued before the latest Begin or Dismiss are rejected with
// ErrStale, so late responses never land on a superseded interaction.
package flow

import (
	"errors"
	"sync"

	"github.com/hamori-app/hamori/internal/models"
	"github.com/hamori-app/hamori/internal/recommend"
)

// ErrStale is returned when a ticket no longer matches the active generation.
var ErrStale = errors.New("flow: stale ticket")

// Ticket identifies the generation a piece of work was started under.
type Ticket uint64

// Flow is safe for concurrent use.
type Flow struct {
	mu         sync.Mutex
	generation uint64

	text   string
	tags   []models.Tag
	group  *models.GroupContext
	result *recommend.Result
}

// New returns an empty Flow.
func New() *Flow {
	return &Flow{}
}

// Begin starts a new request and supersedes any in flight.
func (f *Flow) Begin() Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	return Ticket(f.generation)
}

// Dismiss clears text, tags and result and supersedes in-flight work.
// The selected group survives.
func (f *Flow) Dismiss() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.text = ""
	f.tags = nil
	f.result = nil
}

// SelectGroup sets or clears (nil) the group the search runs for.
func (f *Flow) SelectGroup(g *models.GroupContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g == nil {
		f.group = nil
		return
	}
	cp := *g
	f.group = &cp
}

// ApplyText records a transcript or typed text.
func (f *Flow) ApplyText(t Ticket, text string) error {
	return f.apply(t, func() { f.text = text })
}

// ApplyTags records the normalized tags for the current text.
func (f *Flow) ApplyTags(t Ticket, tags []models.Tag) error {
	cp := append([]models.Tag(nil), tags...)
	return f.apply(t, func() {
		f.tags = cp
		f.result = nil
	})
}

// ApplyResult records a recommendation.
func (f *Flow) ApplyResult(t Ticket, res recommend.Result) error {
	return f.apply(t, func() { f.result = &res })
}

func (f *Flow) apply(t Ticket, fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uint64(t) != f.generation {
		return ErrStale
	}
	fn()
	return nil
}

// State is a copy of the flow's contents.
type State struct {
	Generation uint64
	Text       string
	Tags       []models.Tag

	// TagDescriptions maps each tag label to its description.
	TagDescriptions map[string]string

	Group  *models.GroupContext
	Result *recommend.Result
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := State{
		Generation:      f.generation,
		Text:            f.text,
		Tags:            append([]models.Tag(nil), f.tags...),
		TagDescriptions: make(map[string]string, len(f.tags)),
	}
	for _, t := range f.tags {
		s.TagDescriptions[t.Label] = t.Description
	}
	if f.group != nil {
		g := *f.group
		s.Group = &g
	}
	if f.result != nil {
		r := *f.result
		s.Result = &r
	}
	return s
}
