package main

import (
	"fmt"
	"testing"
)

func TestRenderSubLayersOrderAndIDs(t *testing.T) {
	lineLayer := &stubLayer{id: "street-line"}
	pointLayer := &stubLayer{id: "street-point"}
	reg := NewLayerRegistry(lineLayer, pointLayer)
	r := NewSubLayerRenderer(reg, NewLayerDataCache(nil), NewOldDataCache(16))
	tile := loadedTile(t, TileID{X: 10, Y: 20, Z: 12}, 3)

	subs := r.RenderSubLayers(tile, "")
	if len(subs) != 2 {
		t.Fatalf("got %d sub-layers, want 2", len(subs))
	}
	if subs[0].LayerID != "street-line" || subs[1].LayerID != "street-point" {
		t.Fatalf("layer order not preserved: %s, %s", subs[0].LayerID, subs[1].LayerID)
	}
	if subs[0].ID != "12-10-20-street-line" {
		t.Fatalf("sub-layer id = %s", subs[0].ID)
	}
}

func TestRenderSubLayersNoLayers(t *testing.T) {
	r := NewSubLayerRenderer(NewLayerRegistry(), NewLayerDataCache(nil), NewOldDataCache(16))
	tile := loadedTile(t, TileID{X: 10, Y: 20, Z: 12}, 1)
	if subs := r.RenderSubLayers(tile, ""); subs != nil {
		t.Fatalf("expected nil for empty layer config, got %d", len(subs))
	}
}

func TestRenderSubLayersZeroRowPriorTreatedAbsent(t *testing.T) {
	layer := &stubLayer{id: "street-line"}
	reg := NewLayerRegistry(layer)
	old := NewOldDataCache(16)
	r := NewSubLayerRenderer(reg, NewLayerDataCache(nil), old)

	// First render while pending stores a zero-row result.
	tile := NewTile(TileID{X: 10, Y: 20, Z: 12})
	r.RenderSubLayers(tile, "")
	key := oldDataKey("street-line", tile.ID)
	if prior := old.Get(key); prior == nil || prior.data.RowCount() != 0 {
		t.Fatal("expected a stored zero-row prior")
	}

	if err := tile.SetData([]Row{{nil}, {nil}}, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	r.RenderSubLayers(tile, "")
	if layer.lastOld != nil {
		t.Fatal("zero-row prior must be passed as absent, not reused")
	}
	// And the fresh result replaced it.
	if prior := old.Get(key); prior == nil || prior.data.RowCount() != 2 {
		t.Fatal("new formatted data not written back")
	}
}

func TestRenderSubLayersReusesPrior(t *testing.T) {
	layer := &stubLayer{id: "street-line"}
	reg := NewLayerRegistry(layer)
	r := NewSubLayerRenderer(reg, NewLayerDataCache(nil), NewOldDataCache(16))
	tile := loadedTile(t, TileID{X: 10, Y: 20, Z: 12}, 2)

	r.RenderSubLayers(tile, "")
	first := layer.lastOld
	reg.Touch("street-line")
	r.RenderSubLayers(tile, "")
	if first != nil {
		t.Fatal("first render had no prior")
	}
	if layer.lastOld == nil {
		t.Fatal("second render should receive the prior formatted data")
	}
}

func TestOldDataCacheBounded(t *testing.T) {
	c := NewOldDataCache(4)
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("street-line-12-%d-0", i), &layerResult{seq: uint64(i), data: &stubData{rows: 1}})
	}
	if c.Len() != 4 {
		t.Fatalf("cache holds %d entries, cap is 4", c.Len())
	}
	if c.Get("street-line-12-0-0") != nil {
		t.Fatal("oldest entry should have been evicted")
	}
	if c.Get("street-line-12-9-0") == nil {
		t.Fatal("newest entry missing")
	}
}

func TestOldDataCacheUpdateMovesFront(t *testing.T) {
	c := NewOldDataCache(2)
	a := &layerResult{seq: 1, data: &stubData{rows: 1}}
	b := &layerResult{seq: 2, data: &stubData{rows: 1}}
	c.Put("a", a)
	c.Put("b", b)
	c.Get("a")
	c.Put("c", &layerResult{seq: 3, data: &stubData{rows: 1}})
	if c.Get("a") == nil {
		t.Fatal("recently used entry evicted")
	}
	if c.Get("b") != nil {
		t.Fatal("least recently used entry survived")
	}
}

func TestLayerRegistryTouch(t *testing.T) {
	reg := NewLayerRegistry(&stubLayer{id: "street-line"})
	if v := reg.Version("street-line"); v != 1 {
		t.Fatalf("initial version = %d", v)
	}
	if !reg.Touch("street-line") {
		t.Fatal("touch failed for known layer")
	}
	if v := reg.Version("street-line"); v != 2 {
		t.Fatalf("version after touch = %d", v)
	}
	if reg.Touch("nope") {
		t.Fatal("touch succeeded for unknown layer")
	}
}
