package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// EncodedTile pairs a coordinate with its framed payload.
type EncodedTile struct {
	ID TileID
	C  []byte
}

// TileStore is a local cache of encoded tile payloads, keyed by
// coordinate. The fetcher consults it before the network; the seed task
// fills it in bulk.
type TileStore interface {
	Get(id TileID) ([]byte, bool, error)
	Put(id TileID, data []byte) error
	PutBatch(tiles []EncodedTile) error
	Count() (int, error)
	Close() error
}

// OpenTileStore builds a store from the configured output format.
// "none" disables local caching.
func OpenTileStore(format, name, dir, conn string) (TileStore, error) {
	switch format {
	case "mbtiles":
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
		return OpenMBTilesStore(filepath.Join(dir, fmt.Sprintf("%s.mbtiles", name)), name)
	case "mysql":
		return OpenMySQLStore(conn)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown store format %q", format)
	}
}

// MBTilesStore keeps tiles in an mbtiles-schema sqlite database: XYZ
// rows are flipped to TMS on the way in and out.
type MBTilesStore struct {
	db *sql.DB
}

func OpenMBTilesStore(file, name string) (*MBTilesStore, error) {
	db, err := sql.Open("sqlite3", file)
	if err != nil {
		return nil, err
	}
	if err := optimizeConnection(db); err != nil {
		return nil, err
	}
	stmts := []string{
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index if not exists name on metadata (name);",
		"create unique index if not exists tile_index on tiles(zoom_level, tile_column, tile_row);",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return nil, err
		}
	}
	meta := map[string]string{
		"name":    name,
		"format":  "geojson",
		"type":    "overlay",
		"minzoom": strconv.Itoa(StreetZoom),
		"maxzoom": strconv.Itoa(StreetZoom),
	}
	for k, v := range meta {
		if _, err := db.Exec("insert or ignore into metadata (name, value) values (?, ?)", k, v); err != nil {
			return nil, err
		}
	}
	return &MBTilesStore{db: db}, nil
}

func optimizeConnection(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA synchronous=1",
		"PRAGMA locking_mode=EXCLUSIVE",
		"PRAGMA journal_mode=OFF",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}

func (s *MBTilesStore) Get(id TileID) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		id.Z, id.X, id.FlipY(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *MBTilesStore) Put(id TileID, data []byte) error {
	return s.PutBatch([]EncodedTile{{ID: id, C: data}})
}

func (s *MBTilesStore) PutBatch(tiles []EncodedTile) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, tile := range tiles {
		_, err := tx.Exec(
			"insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);",
			tile.ID.Z, tile.ID.X, tile.ID.FlipY(), tile.C,
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *MBTilesStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow("select count(*) from tiles").Scan(&n)
	return n, err
}

func (s *MBTilesStore) Close() error {
	return s.db.Close()
}

// MySQLStore is the shared-database variant of the tile store.
type MySQLStore struct {
	db *sql.DB
}

func OpenMySQLStore(conn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", conn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	_, err = db.Exec("create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data mediumblob);")
	if err != nil {
		return nil, err
	}
	_, _ = db.Exec("create unique index tile_index on tiles(zoom_level, tile_column, tile_row);")
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Get(id TileID) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRow(
		"select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
		id.Z, id.X, id.FlipY(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *MySQLStore) Put(id TileID, data []byte) error {
	return s.PutBatch([]EncodedTile{{ID: id, C: data}})
}

func (s *MySQLStore) PutBatch(tiles []EncodedTile) error {
	if len(tiles) == 0 {
		return nil
	}
	placeholder := "(?,?,?,?)"
	valueStrings := make([]string, 0, len(tiles))
	bulkValues := make([]interface{}, 0, len(tiles)*4)
	for _, tile := range tiles {
		valueStrings = append(valueStrings, placeholder)
		bulkValues = append(bulkValues, tile.ID.Z, tile.ID.X, tile.ID.FlipY(), tile.C)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(
		"replace into tiles (zoom_level, tile_column, tile_row, tile_data) values %s",
		strings.Join(valueStrings, ","),
	)
	if _, err := tx.Exec(stmt, bulkValues...); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *MySQLStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow("select count(*) from tiles").Scan(&n)
	return n, err
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
