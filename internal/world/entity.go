package world

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Entity is one record in the Store: the authoritative description of a world
// object, independent of whether an instance currently exists for it.
// Unloading never deletes a record; only explicit removal does.
type Entity struct {
	UID       string
	Source    string // asset path or built-in type name to instantiate
	ParentUID string // empty = top-level; orphaned parents are treated as top-level

	Position Vec3
	Rotation Vec3
	Scale    Vec3

	// Size is the bounding extent scalar (max axis). Zero = not spatial,
	// always resident.
	Size float64

	// Properties holds only values that differ from the source type's
	// default baseline. Values are primitives, vectors encoded as arrays,
	// or nested maps.
	Properties map[string]any

	// size cache, keyed on (source, scale). A source change or scale change
	// invalidates it; nothing else moves the bounding extent.
	sizeValid   bool
	cacheSource string
	cacheScale  Vec3
}

// RefreshSize recomputes Size from the source's base extent and the entity's
// scale, using the cache when neither changed since last time.
func (e *Entity) RefreshSize(baseExtent func(source string) float64) {
	if e.sizeValid && e.cacheSource == e.Source && e.cacheScale == e.Scale {
		return
	}
	extent := baseExtent(e.Source)
	if extent <= 0 {
		e.Size = 0
	} else {
		e.Size = extent * e.Scale.MaxAbsComponent()
	}
	e.sizeValid = true
	e.cacheSource = e.Source
	e.cacheScale = e.Scale
}

// NewUID returns a fresh 16-hex-char identifier.
func NewUID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("uid entropy: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// Store is the authoritative table of all entities ever known to the world.
// Single-goroutine access only (engine tick loop).
type Store struct {
	byUID map[string]*Entity
	order []string // insertion order, drives deterministic snapshots
}

func NewStore() *Store {
	return &Store{
		byUID: make(map[string]*Entity),
	}
}

// Add inserts an entity. A duplicate UID is renamed deterministically to the
// first free "uid#N" and the final UID is returned.
func (s *Store) Add(e *Entity) string {
	if _, taken := s.byUID[e.UID]; taken {
		base := e.UID
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s#%d", base, n)
			if _, taken := s.byUID[candidate]; !taken {
				e.UID = candidate
				break
			}
		}
	}
	s.byUID[e.UID] = e
	s.order = append(s.order, e.UID)
	return e.UID
}

// Get returns an entity by UID, or nil.
func (s *Store) Get(uid string) *Entity {
	return s.byUID[uid]
}

// Remove deletes a record permanently. Returns the removed entity or nil.
func (s *Store) Remove(uid string) *Entity {
	e, ok := s.byUID[uid]
	if !ok {
		return nil
	}
	delete(s.byUID, uid)
	for i, u := range s.order {
		if u == uid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return e
}

func (s *Store) Len() int {
	return len(s.byUID)
}

// All iterates every record in insertion order.
func (s *Store) All(fn func(*Entity)) {
	for _, uid := range s.order {
		fn(s.byUID[uid])
	}
}

// HasParent reports whether an entity's parent reference resolves. A missing
// parent does not invalidate the entity; it is treated as top-level.
func (s *Store) HasParent(e *Entity) bool {
	if e.ParentUID == "" {
		return false
	}
	_, ok := s.byUID[e.ParentUID]
	return ok
}

// Children returns the UIDs whose parent is the given UID, in insertion order.
func (s *Store) Children(uid string) []string {
	var out []string
	for _, u := range s.order {
		if s.byUID[u].ParentUID == uid {
			out = append(out, u)
		}
	}
	return out
}

// Roots returns all top-level UIDs in insertion order, including entities
// whose parent reference does not resolve.
func (s *Store) Roots() []string {
	var out []string
	for _, u := range s.order {
		e := s.byUID[u]
		if e.ParentUID == "" || !s.HasParent(e) {
			out = append(out, u)
		}
	}
	return out
}

// Reset drops every record. Used when a snapshot load replaces the world.
func (s *Store) Reset() {
	s.byUID = make(map[string]*Entity)
	s.order = s.order[:0]
}
