// Package routing holds the versioned category routing configuration:
// classification dictionaries, destination conversations and the user
// directory. Snapshots are immutable once published; reloads swap them
// atomically.
package routing

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/incidence-service/internal/classifier"
	"github.com/spec-kit/incidence-service/internal/domain"
)

// Category binds a responsible team to its conversation and dictionary.
type Category struct {
	Name         string   `yaml:"name"`
	Conversation string   `yaml:"conversation"`
	Words        []string `yaml:"words"`
	Phrases      []string `yaml:"phrases"`
}

// Snapshot is one immutable version of the routing configuration.
type Snapshot struct {
	Version             int64                         `yaml:"-"`
	LoadedAt            time.Time                     `yaml:"-"`
	Fuzzy               bool                          `yaml:"fuzzy"`
	SimilarityThreshold float64                       `yaml:"similarity_threshold"`
	Origins             []string                      `yaml:"origins"`
	Categories          []Category                    `yaml:"categories"`
	Intents             classifier.IntentDictionaries `yaml:"intents"`
	Users               []domain.User                 `yaml:"users"`
}

// Parse decodes and validates a YAML routing document.
func Parse(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode routing: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Validate checks category names are unique and conversations map 1:1.
func (s *Snapshot) Validate() error {
	names := make(map[string]struct{}, len(s.Categories))
	convs := make(map[string]string, len(s.Categories))
	for _, c := range s.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("routing: category with empty name")
		}
		if _, dup := names[c.Name]; dup {
			return fmt.Errorf("routing: duplicate category %q", c.Name)
		}
		names[c.Name] = struct{}{}
		if c.Conversation == "" {
			continue
		}
		if other, dup := convs[c.Conversation]; dup {
			return fmt.Errorf("routing: conversation %q mapped to both %q and %q", c.Conversation, other, c.Name)
		}
		convs[c.Conversation] = c.Name
	}
	for _, origin := range s.Origins {
		if name, ok := convs[origin]; ok {
			return fmt.Errorf("routing: origin conversation %q is also the %q team conversation", origin, name)
		}
	}
	return nil
}

// CategoryDictionaries returns the classifier view in declaration order.
func (s *Snapshot) CategoryDictionaries() []classifier.CategoryDictionary {
	out := make([]classifier.CategoryDictionary, 0, len(s.Categories))
	for _, c := range s.Categories {
		out = append(out, classifier.CategoryDictionary{
			Name:       c.Name,
			Dictionary: classifier.Dictionary{Words: c.Words, Phrases: c.Phrases},
		})
	}
	return out
}

// Classifier builds a classifier with the snapshot's matching settings.
func (s *Snapshot) Classifier() classifier.Classifier {
	return classifier.New(s.Fuzzy, s.SimilarityThreshold)
}

// CategoryForConversation returns the category whose team owns conversationID.
func (s *Snapshot) CategoryForConversation(conversationID string) (string, bool) {
	for _, c := range s.Categories {
		if c.Conversation != "" && c.Conversation == conversationID {
			return c.Name, true
		}
	}
	return "", false
}

// Destination returns the team conversation for category.
func (s *Snapshot) Destination(category string) (string, bool) {
	for _, c := range s.Categories {
		if c.Name == category && c.Conversation != "" {
			return c.Conversation, true
		}
	}
	return "", false
}

// IsOrigin reports whether new incidences may be raised in conversationID.
// With no origins configured, any non-team conversation qualifies.
func (s *Snapshot) IsOrigin(conversationID string) bool {
	if len(s.Origins) == 0 {
		_, team := s.CategoryForConversation(conversationID)
		return !team
	}
	return slices.Contains(s.Origins, conversationID)
}

// User looks up a directory entry.
func (s *Snapshot) User(id string) (domain.User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

// ResolveFunc maps a conversation name or id to a conversation id.
type ResolveFunc func(ctx context.Context, nameOrID string) (string, error)

// resolveConversations rewrites conversation names to ids in place.
func (s *Snapshot) resolveConversations(ctx context.Context, resolve ResolveFunc) error {
	for i := range s.Categories {
		if s.Categories[i].Conversation == "" {
			continue
		}
		id, err := resolve(ctx, s.Categories[i].Conversation)
		if err != nil {
			return fmt.Errorf("resolve conversation for %q: %w", s.Categories[i].Name, err)
		}
		s.Categories[i].Conversation = id
	}
	for i, origin := range s.Origins {
		id, err := resolve(ctx, origin)
		if err != nil {
			return fmt.Errorf("resolve origin %q: %w", origin, err)
		}
		s.Origins[i] = id
	}
	return s.Validate()
}

// Store publishes the current snapshot and reloads it from disk.
type Store struct {
	path     string
	resolve  ResolveFunc
	onReload []func()
	current  atomic.Pointer[Snapshot]
	mu       sync.Mutex
}

// NewStore returns a store seeded with snap.
func NewStore(path string, snap *Snapshot) *Store {
	s := &Store{path: path}
	if snap == nil {
		snap = &Snapshot{}
	}
	if snap.LoadedAt.IsZero() {
		snap.LoadedAt = time.Now()
	}
	if snap.Version == 0 {
		snap.Version = 1
	}
	s.current.Store(snap)
	return s
}

// Open loads path and returns a store.
func Open(ctx context.Context, path string, resolve ResolveFunc) (*Store, error) {
	s := &Store{path: path, resolve: resolve}
	if _, err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OnReload registers fn to run at the start of every later reload, before
// conversation names are resolved again.
func (s *Store) OnReload(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Current returns the published snapshot. Callers must not mutate it.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload re-reads the routing file and publishes it as a new version. On
// failure the previous snapshot stays current.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil, fmt.Errorf("routing: no file configured")
	}
	if s.current.Load() != nil {
		for _, fn := range s.onReload {
			fn()
		}
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read routing file: %w", err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if s.resolve != nil {
		if err := snap.resolveConversations(ctx, s.resolve); err != nil {
			return nil, err
		}
	}

	snap.Version = 1
	if prev := s.current.Load(); prev != nil {
		snap.Version = prev.Version + 1
	}
	snap.LoadedAt = time.Now()
	s.current.Store(snap)
	return snap, nil
}
