// Command inspect opens a seeded mbtiles store, prints its metadata and
// per-zoom tile counts, and optionally decodes one tile to verify the
// payload framing survived the round trip.
package main

import (
	"database/sql"
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
)

var (
	ff string
	zf int
	xf int
	yf int
)

func init() {
	flag.StringVar(&ff, "f", "output/sharedstreets.mbtiles", "mbtiles `file` to inspect")
	flag.IntVar(&zf, "z", -1, "tile zoom to decode")
	flag.IntVar(&xf, "x", -1, "tile column to decode")
	flag.IntVar(&yf, "y", -1, "tile row (XYZ) to decode")
}

func decodeOne(db *sql.DB, z, x, y int) error {
	tmsRow := (1 << z) - y - 1
	var data []byte
	err := db.QueryRow(
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		z, x, tmsRow,
	).Scan(&data)
	if err != nil {
		return err
	}
	if len(data) < 4 {
		return fmt.Errorf("payload too short: %d bytes", len(data))
	}
	n := binary.BigEndian.Uint32(data[:4])
	fc, err := geojson.UnmarshalFeatureCollection(data[4 : 4+int(n)])
	if err != nil {
		return err
	}
	fmt.Printf("tile %d/%d/%d: %d bytes, %d features\n", z, x, y, len(data), len(fc.Features))
	return nil
}

func main() {
	flag.Parse()
	if _, err := os.Stat(ff); err != nil {
		log.Fatalf("store %s not readable: %s", ff, err)
	}
	db, err := sql.Open("sqlite3", ff)
	if err != nil {
		log.Fatalf("open store: %s", err)
	}
	defer db.Close()

	rows, err := db.Query("select name, value from metadata order by name")
	if err == nil {
		fmt.Println("metadata:")
		for rows.Next() {
			var name, value string
			if rows.Scan(&name, &value) == nil {
				fmt.Printf("  %s = %s\n", name, value)
			}
		}
		rows.Close()
	}

	zooms, err := db.Query("select zoom_level, count(*) from tiles group by zoom_level order by zoom_level")
	if err != nil {
		log.Fatalf("count tiles: %s", err)
	}
	defer zooms.Close()
	for zooms.Next() {
		var zoom, count int
		if zooms.Scan(&zoom, &count) == nil {
			fmt.Printf("zoom %d: %d tiles\n", zoom, count)
		}
	}

	if zf >= 0 && xf >= 0 && yf >= 0 {
		if err := decodeOne(db, zf, xf, yf); err != nil {
			log.Fatalf("decode tile: %s", err)
		}
	}
}
