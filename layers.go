package main

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func featureID(f *geojson.Feature) string {
	if f.ID != nil {
		return fmt.Sprintf("%v", f.ID)
	}
	if v, ok := f.Properties["id"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func rowFeature(row Row) *geojson.Feature {
	if len(row) == 0 {
		return nil
	}
	f, _ := row[0].(*geojson.Feature)
	return f
}

// LineData is the formatted output of a LineLayer: one flattened path
// per active row.
type LineData struct {
	Paths    [][]orb.Point `json:"paths"`
	IDs      []string      `json:"ids"`
	Indices  []int         `json:"indices"`
	Color    string        `json:"color"`
	Width    float64       `json:"width"`
	SameData bool          `json:"sameData"`
}

func (d *LineData) RowCount() int { return len(d.Indices) }

// LineLayer renders street geometries as paths.
type LineLayer struct {
	LayerID string
	Color   string
	Width   float64
}

func (l *LineLayer) ID() string { return l.LayerID }

func (l *LineLayer) FormatLayerData(allData []Row, indices []int, old LayerData, opts FormatOptions) LayerData {
	removed := make(map[string]struct{}, len(opts.RemovedIDs))
	for _, id := range opts.RemovedIDs {
		removed[id] = struct{}{}
	}
	data := &LineData{Color: l.Color, Width: l.Width, SameData: opts.SameData}
	for _, i := range indices {
		if i < 0 || i >= len(allData) {
			continue
		}
		f := rowFeature(allData[i])
		if f == nil {
			continue
		}
		id := featureID(f)
		if _, gone := removed[id]; gone {
			continue
		}
		var paths []orb.LineString
		switch g := f.Geometry.(type) {
		case orb.LineString:
			paths = []orb.LineString{g}
		case orb.MultiLineString:
			paths = g
		default:
			continue
		}
		for _, p := range paths {
			data.Paths = append(data.Paths, []orb.Point(p))
			data.IDs = append(data.IDs, id)
			data.Indices = append(data.Indices, i)
		}
	}
	return data
}

func (l *LineLayer) RenderSubLayer(data LayerData, ctx TileContext) (*SubLayer, error) {
	ld, ok := data.(*LineData)
	if !ok {
		return nil, fmt.Errorf("layer %s: unexpected data type %T", l.LayerID, data)
	}
	return &SubLayer{
		ID:      ctx.SubLayerID,
		LayerID: l.LayerID,
		Tile:    ctx.Tile,
		Data:    ld,
	}, nil
}

// PointData is the formatted output of a PointLayer: one reference
// position per active row.
type PointData struct {
	Positions []orb.Point `json:"positions"`
	Indices   []int       `json:"indices"`
	Color     string      `json:"color"`
	Radius    float64     `json:"radius"`
	SameData  bool        `json:"sameData"`
}

func (d *PointData) RowCount() int { return len(d.Indices) }

// PointLayer renders one reference point per street: the point itself
// for point geometries, the first vertex otherwise.
type PointLayer struct {
	LayerID string
	Color   string
	Radius  float64
}

func (l *PointLayer) ID() string { return l.LayerID }

func (l *PointLayer) FormatLayerData(allData []Row, indices []int, old LayerData, opts FormatOptions) LayerData {
	removed := make(map[string]struct{}, len(opts.RemovedIDs))
	for _, id := range opts.RemovedIDs {
		removed[id] = struct{}{}
	}
	data := &PointData{Color: l.Color, Radius: l.Radius, SameData: opts.SameData}
	for _, i := range indices {
		if i < 0 || i >= len(allData) {
			continue
		}
		f := rowFeature(allData[i])
		if f == nil {
			continue
		}
		if _, gone := removed[featureID(f)]; gone {
			continue
		}
		var pos orb.Point
		switch g := f.Geometry.(type) {
		case orb.Point:
			pos = g
		case orb.LineString:
			if len(g) == 0 {
				continue
			}
			pos = g[0]
		case orb.MultiLineString:
			if len(g) == 0 || len(g[0]) == 0 {
				continue
			}
			pos = g[0][0]
		default:
			continue
		}
		data.Positions = append(data.Positions, pos)
		data.Indices = append(data.Indices, i)
	}
	return data
}

func (l *PointLayer) RenderSubLayer(data LayerData, ctx TileContext) (*SubLayer, error) {
	pd, ok := data.(*PointData)
	if !ok {
		return nil, fmt.Errorf("layer %s: unexpected data type %T", l.LayerID, data)
	}
	return &SubLayer{
		ID:      ctx.SubLayerID,
		LayerID: l.LayerID,
		Tile:    ctx.Tile,
		Data:    pd,
	}, nil
}
