package main

import (
	"container/list"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// OldDataCache remembers the last formatted data per "{layer}-{z}-{x}-{y}"
// key so a recompute can keep previously rendered data visible while a
// tile reloads. Bounded LRU; evicting an entry only costs one extra
// recompute on the next render of that pair.
type OldDataCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lruList *list.List
}

type oldEntry struct {
	key string
	res *layerResult
}

func NewOldDataCache(maxSize int) *OldDataCache {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &OldDataCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
	}
}

func (c *OldDataCache) Get(key string) *layerResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	c.lruList.MoveToFront(elem)
	return elem.Value.(*oldEntry).res
}

func (c *OldDataCache) Put(key string, res *layerResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		elem.Value.(*oldEntry).res = res
		c.lruList.MoveToFront(elem)
		return
	}
	if c.lruList.Len() >= c.maxSize {
		oldest := c.lruList.Back()
		if oldest != nil {
			delete(c.items, oldest.Value.(*oldEntry).key)
			c.lruList.Remove(oldest)
		}
	}
	c.items[key] = c.lruList.PushFront(&oldEntry{key: key, res: res})
}

func (c *OldDataCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// LayerRegistry holds the configured rendering layers in a fixed order
// together with their monotonic version counters. Touching a layer
// bumps its version, which invalidates every memoized result for it.
type LayerRegistry struct {
	mu       sync.Mutex
	order    []RenderLayer
	versions map[string]uint64
}

func NewLayerRegistry(layers ...RenderLayer) *LayerRegistry {
	r := &LayerRegistry{versions: make(map[string]uint64)}
	for _, l := range layers {
		r.order = append(r.order, l)
		r.versions[l.ID()] = 1
	}
	return r
}

func (r *LayerRegistry) Layers() []RenderLayer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RenderLayer, len(r.order))
	copy(out, r.order)
	return out
}

func (r *LayerRegistry) Version(layerID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.versions[layerID]
}

// Touch bumps the layer's version, reporting whether the layer exists.
func (r *LayerRegistry) Touch(layerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[layerID]; !ok {
		return false
	}
	r.versions[layerID]++
	return true
}

// SubLayerRenderer turns one tile into renderable sub-layer instances,
// one per configured rendering layer, preserving layer order.
type SubLayerRenderer struct {
	reg   *LayerRegistry
	cache *LayerDataCache
	old   *OldDataCache
}

func NewSubLayerRenderer(reg *LayerRegistry, cache *LayerDataCache, old *OldDataCache) *SubLayerRenderer {
	return &SubLayerRenderer{reg: reg, cache: cache, old: old}
}

func oldDataKey(layerID string, id TileID) string {
	return fmt.Sprintf("%s-%d-%d-%d", layerID, id.Z, id.X, id.Y)
}

func subLayerID(layerID string, id TileID) string {
	return fmt.Sprintf("%d-%d-%d-%s", id.Z, id.X, id.Y, layerID)
}

// RenderSubLayers produces the ordered sub-layer instances for a tile.
// A prior result with zero rows is treated as absent so an empty
// placeholder never masks freshly loaded data.
func (r *SubLayerRenderer) RenderSubLayers(tile *Tile, highlightedID string) []*SubLayer {
	layers := r.reg.Layers()
	if len(layers) == 0 {
		return nil
	}
	subs := make([]*SubLayer, 0, len(layers))
	for _, layer := range layers {
		key := oldDataKey(layer.ID(), tile.ID)
		old := r.old.Get(key)
		if old != nil && old.data.RowCount() == 0 {
			old = nil
		}
		res := r.cache.GetLayerData(layer, tile, r.reg.Version(layer.ID()), old)
		r.old.Put(key, res)
		ctx := TileContext{
			Tile:          tile.ID,
			SubLayerID:    subLayerID(layer.ID(), tile.ID),
			Bound:         tile.ID.mapTile().Bound(),
			HighlightedID: highlightedID,
		}
		sub, err := layer.RenderSubLayer(res.data, ctx)
		if err != nil {
			log.Errorf("render sub-layer %s failed ~ %s", ctx.SubLayerID, err)
			continue
		}
		subs = append(subs, sub)
	}
	return subs
}
