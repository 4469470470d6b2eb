package main

// PickInfo is a low-level pick event referencing one tile sub-layer
// instance. ResolvePick attaches the owning tile's data so downstream
// handling (tooltips, selection) can read the picked row.
type PickInfo struct {
	SourceLayer string  `json:"sourceLayer,omitempty"`
	Tile        TileID  `json:"tile"`
	Index       int     `json:"index"`
	AllData     []Row   `json:"allData,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Object      Row     `json:"object,omitempty"`
}

// ResolvePick resolves the pick's owning tile among the currently
// visible tiles by matching coordinates and attaches its rows, fields
// and the picked row. A pick with no matching tile comes back
// unchanged; misses are silent.
func ResolvePick(info *PickInfo, visible []*Tile) *PickInfo {
	if info == nil {
		return nil
	}
	for _, t := range visible {
		if t.ID != info.Tile {
			continue
		}
		rows, fields := t.Data()
		info.AllData = rows
		info.Fields = fields
		if info.Index >= 0 && info.Index < len(rows) {
			info.Object = rows[info.Index]
		}
		break
	}
	return info
}
