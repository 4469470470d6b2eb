package main

import (
	"testing"
)

func streetRows(t *testing.T, n int) ([]Row, []int) {
	t.Helper()
	rows, _ := ExtractTable(streetCollection(n))
	indices := make([]int, len(rows))
	for i := range indices {
		indices[i] = i
	}
	return rows, indices
}

func TestLineLayerFormat(t *testing.T) {
	rows, indices := streetRows(t, 3)
	layer := &LineLayer{LayerID: "street-line", Color: "#1FBAD6", Width: 2}
	data := layer.FormatLayerData(rows, indices, nil, FormatOptions{SameData: true})
	ld, ok := data.(*LineData)
	if !ok {
		t.Fatalf("unexpected data type %T", data)
	}
	if ld.RowCount() != 3 {
		t.Fatalf("row count = %d, want 3", ld.RowCount())
	}
	if len(ld.Paths) != 3 || len(ld.Paths[0]) != 2 {
		t.Fatalf("paths not extracted: %v", ld.Paths)
	}
	if !ld.SameData {
		t.Fatal("same-data flag dropped")
	}
}

func TestLineLayerRemovedIDs(t *testing.T) {
	rows, indices := streetRows(t, 3)
	layer := &LineLayer{LayerID: "street-line"}
	data := layer.FormatLayerData(rows, indices, nil, FormatOptions{RemovedIDs: []string{"b"}})
	if data.RowCount() != 2 {
		t.Fatalf("row count = %d after removal, want 2", data.RowCount())
	}
}

func TestLineLayerEmptySelection(t *testing.T) {
	layer := &LineLayer{LayerID: "street-line"}
	data := layer.FormatLayerData(nil, nil, nil, FormatOptions{})
	if data.RowCount() != 0 {
		t.Fatalf("row count = %d for empty selection", data.RowCount())
	}
}

func TestPointLayerFormat(t *testing.T) {
	rows, indices := streetRows(t, 2)
	layer := &PointLayer{LayerID: "street-point", Radius: 3}
	data := layer.FormatLayerData(rows, indices, nil, FormatOptions{SameData: true})
	pd, ok := data.(*PointData)
	if !ok {
		t.Fatalf("unexpected data type %T", data)
	}
	if len(pd.Positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(pd.Positions))
	}
	// First vertex of the line is the reference point.
	if pd.Positions[0][1] != 52.52 {
		t.Fatalf("reference point = %v", pd.Positions[0])
	}
}

func TestRenderSubLayerTypeMismatch(t *testing.T) {
	line := &LineLayer{LayerID: "street-line"}
	if _, err := line.RenderSubLayer(&PointData{}, TileContext{}); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestLayersEndToEndRender(t *testing.T) {
	rows, _ := ExtractTable(streetCollection(3))
	tile := NewTile(TileID{X: 10, Y: 20, Z: 12})
	if err := tile.SetData(rows, nil); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	reg := NewLayerRegistry(
		&LineLayer{LayerID: "street-line", Width: 2},
		&PointLayer{LayerID: "street-point", Radius: 3},
	)
	r := NewSubLayerRenderer(reg, NewLayerDataCache(nil), NewOldDataCache(16))
	subs := r.RenderSubLayers(tile, "")
	if len(subs) != 2 {
		t.Fatalf("got %d sub-layers", len(subs))
	}
	if subs[0].Data.RowCount() != 3 {
		t.Fatalf("line sub-layer rows = %d, want 3", subs[0].Data.RowCount())
	}
	if subs[1].Data.RowCount() != 3 {
		t.Fatalf("point sub-layer rows = %d, want 3", subs[1].Data.RowCount())
	}
}
