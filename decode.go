package main

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/paulmach/orb/geojson"
)

// Upstream tiles are framed as a 4-byte big-endian payload length
// followed by a geojson feature collection of that length.
const framePrefixLen = 4

// DecodeTilePayload unwraps the length prefix and decodes the feature
// collection.
func DecodeTilePayload(buf []byte) (*geojson.FeatureCollection, error) {
	if len(buf) < framePrefixLen {
		return nil, fmt.Errorf("tile payload too short: %d bytes", len(buf))
	}
	n := binary.BigEndian.Uint32(buf[:framePrefixLen])
	body := buf[framePrefixLen:]
	if int(n) > len(body) {
		return nil, fmt.Errorf("tile payload truncated: prefix %d, body %d", n, len(body))
	}
	fc, err := geojson.UnmarshalFeatureCollection(body[:n])
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	return fc, nil
}

// EncodeTilePayload is the inverse framing, used by the seeding path
// and by tests.
func EncodeTilePayload(fc *geojson.FeatureCollection) ([]byte, error) {
	body, err := fc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, framePrefixLen+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[framePrefixLen:], body)
	return buf, nil
}

// GeoJSONField is the synthetic first column holding the raw feature.
const GeoJSONField = "_geojson"

func fieldType(v interface{}) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64:
		return "real"
	case int, int64:
		return "integer"
	default:
		return "string"
	}
}

// ExtractTable flattens a feature collection into ordered rows and
// field descriptors. The field set is the union of all property keys,
// sorted for a deterministic column order; the first column is always
// the feature itself.
func ExtractTable(fc *geojson.FeatureCollection) ([]Row, []Field) {
	keys := map[string]interface{}{}
	for _, f := range fc.Features {
		for k, v := range f.Properties {
			if _, seen := keys[k]; !seen || keys[k] == nil {
				keys[k] = v
			}
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names)+1)
	fields = append(fields, Field{Name: GeoJSONField, Type: "geojson"})
	for _, name := range names {
		fields = append(fields, Field{Name: name, Type: fieldType(keys[name])})
	}

	rows := make([]Row, 0, len(fc.Features))
	for _, f := range fc.Features {
		row := make(Row, 0, len(fields))
		row = append(row, f)
		for _, name := range names {
			row = append(row, f.Properties[name])
		}
		rows = append(rows, row)
	}
	return rows, fields
}
