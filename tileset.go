package main

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// TileDataFunc resolves one tile coordinate into rows and fields.
type TileDataFunc func(TileID) ([]Row, []Field, error)

// TileSet is the registry of currently visible tiles. Acquiring an
// unknown tile creates it in the pending state and starts an
// asynchronous load; evicting a tile drops its pending continuations
// so a late resolution cannot redraw a tile nobody shows anymore.
type TileSet struct {
	mu      sync.Mutex
	tiles   map[TileID]*Tile
	getData TileDataFunc
}

func NewTileSet(getData TileDataFunc) *TileSet {
	return &TileSet{tiles: make(map[TileID]*Tile), getData: getData}
}

// Acquire returns the tile for id, creating and loading it on first use.
func (s *TileSet) Acquire(id TileID) *Tile {
	s.mu.Lock()
	if t, ok := s.tiles[id]; ok {
		s.mu.Unlock()
		return t
	}
	t := NewTile(id)
	s.tiles[id] = t
	s.mu.Unlock()
	go s.load(t)
	return t
}

func (s *TileSet) load(t *Tile) {
	rows, fields, err := s.getData(t.ID)
	if err != nil {
		// Tile stays pending and renders empty data; retry is the
		// seeding path's job, not the render path's.
		log.Errorf("load tile %s failed ~ %s", t.ID, err)
		return
	}
	if err := t.SetData(rows, fields); err != nil {
		log.Warnf("tile %s resolved twice", t.ID)
	}
}

// Get returns the visible tile for id without creating one.
func (s *TileSet) Get(id TileID) (*Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tiles[id]
	return t, ok
}

// Evict removes a tile from the visible set.
func (s *TileSet) Evict(id TileID) {
	s.mu.Lock()
	t, ok := s.tiles[id]
	delete(s.tiles, id)
	s.mu.Unlock()
	if ok {
		t.evict()
	}
}

// Visible snapshots the current tile set in unspecified order.
func (s *TileSet) Visible() []*Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tile, 0, len(s.tiles))
	for _, t := range s.tiles {
		out = append(out, t)
	}
	return out
}

func (s *TileSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}
