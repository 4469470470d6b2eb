package main

import (
	"sync"

	"github.com/paulmach/orb"
)

// LayerData is the rendering-ready representation a rendering layer
// derives from raw rows. The cache treats it as opaque apart from the
// active-row count.
type LayerData interface {
	RowCount() int
}

// FormatOptions carries the flags a rendering layer receives alongside
// the rows it is asked to format.
type FormatOptions struct {
	// SameData marks a refresh over an unchanged row set, so the layer
	// may skip incremental diffing against the old data.
	SameData bool
	// RemovedIDs lists row identifiers the host excluded from display.
	RemovedIDs []string
}

// TileContext is the shared view and interaction state handed to every
// sub-layer render of one pass.
type TileContext struct {
	Tile          TileID
	SubLayerID    string
	Bound         orb.Bound
	HighlightedID string
}

// RenderLayer is the contract a configured rendering layer fulfils.
type RenderLayer interface {
	ID() string
	FormatLayerData(allData []Row, indices []int, old LayerData, opts FormatOptions) LayerData
	RenderSubLayer(data LayerData, ctx TileContext) (*SubLayer, error)
}

// SubLayer is one renderable instance produced for a (layer, tile)
// pair. Its ID is derived from tile coords plus the layer id so the
// host keeps instances stable across re-renders.
type SubLayer struct {
	ID      string    `json:"id"`
	LayerID string    `json:"layer"`
	Tile    TileID    `json:"tile"`
	Data    LayerData `json:"data"`
}

// layerResult wraps formatted data with a process-unique sequence
// number. The sequence stands in for object identity when prior output
// participates in the memo key.
type layerResult struct {
	seq  uint64
	data LayerData
}

func unwrap(r *layerResult) LayerData {
	if r == nil {
		return nil
	}
	return r.data
}

// layerKey captures every input that affects formatted output. Two
// calls with equal keys are guaranteed to produce the same data, so the
// memoized result can be returned as-is.
type layerKey struct {
	layerID string
	tile    TileID
	version uint64
	loaded  bool
	oldSeq  uint64
}

type layerMemo struct {
	key layerKey
	res *layerResult
}

// LayerDataCache avoids redundant recomputation of formatted render
// data per (rendering layer, tile) pair. The memo itself lives on the
// tile; the cache only owns the sequence counter and the host redraw
// hook.
type LayerDataCache struct {
	seq    uint64
	mu     sync.Mutex
	redraw func()
}

func NewLayerDataCache(redraw func()) *LayerDataCache {
	if redraw == nil {
		redraw = func() {}
	}
	return &LayerDataCache{redraw: redraw}
}

// GetLayerData returns memoized formatted data for the layer/tile pair,
// recomputing only when the composite key changed since the last call.
func (c *LayerDataCache) GetLayerData(layer RenderLayer, tile *Tile, version uint64, old *layerResult) *layerResult {
	key := layerKey{
		layerID: layer.ID(),
		tile:    tile.ID,
		version: version,
		loaded:  tile.Loaded(),
	}
	if old != nil {
		key.oldSeq = old.seq
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m := tile.memo(key.layerID); m != nil && m.key == key {
		return m.res
	}
	c.seq++
	res := &layerResult{
		seq:  c.seq,
		data: c.recomputeLayerData(layer, tile, old),
	}
	tile.setMemo(key.layerID, &layerMemo{key: key, res: res})
	return res
}

// recomputeLayerData formats the full row set for a loaded tile. For a
// pending tile it registers a redraw continuation and formats the empty
// row set, so the sub-layer renders nothing until data arrives while
// the old data reference is still passed through for continuity.
func (c *LayerDataCache) recomputeLayerData(layer RenderLayer, tile *Tile, old *layerResult) LayerData {
	if tile.Loaded() {
		rows, _ := tile.Data()
		indices := make([]int, len(rows))
		for i := range indices {
			indices[i] = i
		}
		return layer.FormatLayerData(rows, indices, unwrap(old), FormatOptions{SameData: true})
	}
	tile.whenLoaded(c.redraw)
	return layer.FormatLayerData(nil, nil, unwrap(old), FormatOptions{})
}
