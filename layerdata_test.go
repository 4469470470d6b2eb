package main

import (
	"testing"
)

type stubData struct {
	rows int
}

func (d *stubData) RowCount() int { return d.rows }

type stubLayer struct {
	id          string
	formatCalls int
	lastIndices []int
	lastOld     LayerData
	lastOpts    FormatOptions
}

func (l *stubLayer) ID() string { return l.id }

func (l *stubLayer) FormatLayerData(allData []Row, indices []int, old LayerData, opts FormatOptions) LayerData {
	l.formatCalls++
	l.lastIndices = indices
	l.lastOld = old
	l.lastOpts = opts
	return &stubData{rows: len(indices)}
}

func (l *stubLayer) RenderSubLayer(data LayerData, ctx TileContext) (*SubLayer, error) {
	return &SubLayer{ID: ctx.SubLayerID, LayerID: l.id, Tile: ctx.Tile, Data: data}, nil
}

func loadedTile(t *testing.T, id TileID, rows int) *Tile {
	t.Helper()
	tile := NewTile(id)
	data := make([]Row, rows)
	for i := range data {
		data[i] = Row{nil, i}
	}
	if err := tile.SetData(data, []Field{{Name: GeoJSONField, Type: "geojson"}}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	return tile
}

func TestGetLayerDataMemoized(t *testing.T) {
	cache := NewLayerDataCache(nil)
	layer := &stubLayer{id: "street-line"}
	tile := loadedTile(t, TileID{X: 10, Y: 20, Z: 12}, 3)

	first := cache.GetLayerData(layer, tile, 1, nil)
	second := cache.GetLayerData(layer, tile, 1, nil)
	if first != second {
		t.Fatal("unchanged inputs must return the identical result")
	}
	if layer.formatCalls != 1 {
		t.Fatalf("format called %d times, want 1", layer.formatCalls)
	}
}

func TestGetLayerDataVersionBump(t *testing.T) {
	cache := NewLayerDataCache(nil)
	layer := &stubLayer{id: "street-line"}
	tile := loadedTile(t, TileID{X: 10, Y: 20, Z: 12}, 3)

	first := cache.GetLayerData(layer, tile, 1, nil)
	second := cache.GetLayerData(layer, tile, 2, nil)
	if first == second {
		t.Fatal("version bump must force a recompute")
	}
	if layer.formatCalls != 2 {
		t.Fatalf("format called %d times, want 2", layer.formatCalls)
	}
}

func TestGetLayerDataOldIdentity(t *testing.T) {
	cache := NewLayerDataCache(nil)
	layer := &stubLayer{id: "street-line"}
	tile := loadedTile(t, TileID{X: 10, Y: 20, Z: 12}, 3)

	first := cache.GetLayerData(layer, tile, 1, nil)
	// Feeding the previous output back in is a new input.
	second := cache.GetLayerData(layer, tile, 1, first)
	if first == second {
		t.Fatal("old-data identity change must force a recompute")
	}
	if layer.lastOld != first.data {
		t.Fatal("old data not passed through to the layer")
	}
	// Stable from here on.
	third := cache.GetLayerData(layer, tile, 1, first)
	if third != second {
		t.Fatal("repeated call with same old data must memoize")
	}
}

func TestGetLayerDataPendingTile(t *testing.T) {
	redraws := 0
	cache := NewLayerDataCache(func() { redraws++ })
	layer := &stubLayer{id: "street-line"}
	tile := NewTile(TileID{X: 10, Y: 20, Z: 12})

	res := cache.GetLayerData(layer, tile, 1, nil)
	if res.data.RowCount() != 0 {
		t.Fatalf("pending tile formatted %d rows, want 0", res.data.RowCount())
	}
	if layer.lastOpts.SameData {
		t.Fatal("pending recompute must not be marked same-data")
	}
	if redraws != 0 {
		t.Fatal("redraw requested before the tile resolved")
	}

	if err := tile.SetData([]Row{{nil}, {nil}}, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	if redraws != 1 {
		t.Fatalf("redraws = %d after load, want 1", redraws)
	}

	// Load state changed, so the key changed and the full set is formatted.
	next := cache.GetLayerData(layer, tile, 1, nil)
	if next == res {
		t.Fatal("load-state flip must force a recompute")
	}
	if next.data.RowCount() != 2 {
		t.Fatalf("loaded tile formatted %d rows, want 2", next.data.RowCount())
	}
	if !layer.lastOpts.SameData {
		t.Fatal("loaded recompute must be marked same-data")
	}
	if len(layer.lastIndices) != 2 || layer.lastIndices[0] != 0 || layer.lastIndices[1] != 1 {
		t.Fatalf("active indices = %v, want [0 1]", layer.lastIndices)
	}
}

func TestGetLayerDataPerLayerMemos(t *testing.T) {
	cache := NewLayerDataCache(nil)
	lineLayer := &stubLayer{id: "street-line"}
	pointLayer := &stubLayer{id: "street-point"}
	tile := loadedTile(t, TileID{X: 10, Y: 20, Z: 12}, 3)

	a := cache.GetLayerData(lineLayer, tile, 1, nil)
	b := cache.GetLayerData(pointLayer, tile, 1, nil)
	if a == b {
		t.Fatal("layers must not share memoized results")
	}
	if cache.GetLayerData(lineLayer, tile, 1, nil) != a {
		t.Fatal("second layer's compute evicted the first layer's memo")
	}
}
