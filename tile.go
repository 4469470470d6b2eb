package main

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb/maptile"
)

const threeSixty float64 = 360.0
const oneEighty float64 = 180.0
const webMercatorLatLimit float64 = 85.05112877980659

// StreetZoom is the only zoom level this layer fetches; the upstream
// dataset is pre-tiled at z=12 and nothing else.
const StreetZoom = 12

// TileID identifies a tile in the XYZ scheme.
type TileID struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (id TileID) String() string {
	return fmt.Sprintf("%d/%d/%d", id.Z, id.X, id.Y)
}

// FlipY converts the XYZ row to the TMS row used by the mbtiles schema.
func (id TileID) FlipY() int {
	return (1 << id.Z) - id.Y - 1
}

func (id TileID) Valid() bool {
	return id.Z >= 0 && id.Z < 32 &&
		id.X >= 0 && id.X < (1<<id.Z) &&
		id.Y >= 0 && id.Y < (1<<id.Z)
}

func (id TileID) mapTile() maptile.Tile {
	return maptile.New(uint32(id.X), uint32(id.Y), maptile.Zoom(id.Z))
}

// LngLat holds a standard geographic coordinate pair in decimal degrees.
type LngLat struct {
	Lng, Lat float64
}

// LngLatBbox bounding box in decimal degrees.
type LngLatBbox struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
	South float64 `json:"south"`
}

// Intersects returns true if this bounding box intersects with the other.
func (b *LngLatBbox) Intersects(o *LngLatBbox) bool {
	latOverlaps := (o.North > b.South) && (o.South < b.North)
	lngOverlaps := (o.East > b.West) && (o.West < b.East)
	return latOverlaps && lngOverlaps
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / oneEighty)
}

func rad2deg(rad float64) float64 {
	return rad * (oneEighty / math.Pi)
}

// TileAt returns the tile containing a longitude/latitude at a zoom level.
func TileAt(lng float64, lat float64, zoom int) TileID {
	latRad := deg2rad(lat)
	n := math.Pow(2.0, float64(zoom))
	x := int(math.Floor((lng + oneEighty) / threeSixty * n))
	y := int(math.Floor((1.0 - math.Log(math.Tan(latRad)+(1.0/math.Cos(latRad)))/math.Pi) / 2.0 * n))
	return TileID{X: x, Y: y, Z: zoom}
}

// Ul returns the upper left corner of the tile in decimal degrees.
func (id TileID) Ul() LngLat {
	n := math.Pow(2.0, float64(id.Z))
	lonDeg := float64(id.X)/n*threeSixty - oneEighty
	latRad := math.Atan(math.Sinh(math.Pi * (1 - (2 * float64(id.Y) / n))))
	return LngLat{lonDeg, rad2deg(latRad)}
}

// Bounds returns the geographic bounding box covered by the tile.
func (id TileID) Bounds() LngLatBbox {
	a := id.Ul()
	b := TileID{X: id.X + 1, Y: id.Y + 1, Z: id.Z}.Ul()
	return LngLatBbox{West: a.Lng, South: b.Lat, East: b.Lng, North: a.Lat}
}

func clampBoxes(bounds *LngLatBbox) []*LngLatBbox {
	var boxes []*LngLatBbox
	if bounds.West > bounds.East {
		boxes = []*LngLatBbox{
			{West: -180.0, South: bounds.South, East: bounds.East, North: bounds.North},
			{West: bounds.West, South: bounds.South, East: 180.0, North: bounds.North},
		}
	} else {
		boxes = []*LngLatBbox{bounds}
	}
	for i, box := range boxes {
		boxes[i] = &LngLatBbox{
			West:  math.Max(-180.0, box.West),
			South: math.Max(-webMercatorLatLimit, box.South),
			East:  math.Min(180.0, box.East),
			North: math.Min(webMercatorLatLimit, box.North),
		}
	}
	return boxes
}

// TileRange calls fn for every tile of the zoom level intersecting bounds.
func TileRange(bounds *LngLatBbox, zoom int, fn func(TileID) bool) {
	for _, box := range clampBoxes(bounds) {
		ll := TileAt(box.West, box.South, zoom)
		ur := TileAt(box.East, box.North, zoom)
		llx := max(ll.X, 0)
		ury := max(ur.Y, 0)
		maxX := min(ur.X+1, 1<<zoom)
		maxY := min(ll.Y+1, 1<<zoom)
		for x := llx; x < maxX; x++ {
			for y := ury; y < maxY; y++ {
				if !fn(TileID{X: x, Y: y, Z: zoom}) {
					return
				}
			}
		}
	}
}

// TileCount returns the number of tiles TileRange would visit.
func TileCount(bounds *LngLatBbox, zoom int) int {
	count := 0
	TileRange(bounds, zoom, func(TileID) bool {
		count++
		return true
	})
	return count
}

// Field describes one column of a tile's tabular data.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Row is one record of decoded tile data. The first element is the
// decoded feature, the rest follow the field order.
type Row []interface{}

var errDataSet = errors.New("tile data already populated")

// Tile owns the decoded row data for one tile coordinate plus the
// per-rendering-layer memo cache. Rows and fields are written at most
// once; after that the tile is immutable apart from its memos.
type Tile struct {
	ID TileID

	mu      sync.Mutex
	loaded  bool
	evicted bool
	allData []Row
	fields  []Field
	memos   map[string]*layerMemo
	onLoad  []func()
}

func NewTile(id TileID) *Tile {
	return &Tile{ID: id, memos: make(map[string]*layerMemo)}
}

// SetData populates the tile exactly once and fires any continuations
// registered while the tile was pending. Continuations registered after
// eviction are dropped on the floor.
func (t *Tile) SetData(rows []Row, fields []Field) error {
	t.mu.Lock()
	if t.loaded {
		t.mu.Unlock()
		return errDataSet
	}
	t.allData = rows
	t.fields = fields
	t.loaded = true
	pending := t.onLoad
	t.onLoad = nil
	evicted := t.evicted
	t.mu.Unlock()
	if evicted {
		return nil
	}
	for _, fn := range pending {
		fn()
	}
	return nil
}

func (t *Tile) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// Data returns the decoded rows and fields, nil while pending.
func (t *Tile) Data() ([]Row, []Field) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allData, t.fields
}

// whenLoaded registers a one-shot continuation. Already-loaded tiles
// ignore it; the caller got current data anyway.
func (t *Tile) whenLoaded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded || t.evicted {
		return
	}
	t.onLoad = append(t.onLoad, fn)
}

// evict marks the tile dead so a late load resolution cannot trigger
// redraws for a tile nobody renders anymore.
func (t *Tile) evict() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evicted = true
	t.onLoad = nil
}

func (t *Tile) memo(layerID string) *layerMemo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.memos[layerID]
}

func (t *Tile) setMemo(layerID string, m *layerMemo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.memos[layerID] = m
}
