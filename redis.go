package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

// ErrTile is the fail-list record for one tile coordinate.
type ErrTile struct {
	X   int    `json:"x"`
	Y   int    `json:"y"`
	Z   int    `json:"z"`
	Res string `json:"res"`
}

// FailList tracks failed and permanently-missing tiles per task in
// Redis, so an interrupted or flaky seed run can be replayed. Nil/404
// tiles land in a separate list and are never retried.
type FailList struct {
	id   string
	pool redis.Pool
}

func NewFailList(id, addr string) *FailList {
	return &FailList{
		id: id,
		pool: redis.Pool{
			MaxIdle:     16,
			MaxActive:   32,
			IdleTimeout: 120,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr)
			},
		},
	}
}

func tileKey(id TileID) string {
	return "tile_" + strconv.Itoa(id.X) + "_" + strconv.Itoa(id.Y) + "_" + strconv.Itoa(id.Z)
}

func (f *FailList) close(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		log.Errorf("redis connection close failure")
	}
}

// Record files the tile under the retryable fail list, or the nil list
// for empty/404 responses.
func (f *FailList) Record(id TileID, reason string) {
	conn := f.pool.Get()
	defer f.close(conn)
	et := ErrTile{X: id.X, Y: id.Y, Z: id.Z, Res: reason}
	val, _ := json.Marshal(et)
	list := "fail_list:" + f.id
	if reason == "nil tile" || reason == "resp 404" {
		list = "nil_list:" + f.id
	}
	if _, err := conn.Do("hset", list, tileKey(id), val); err != nil {
		log.Errorf("redis save tile failure ~ %s", err)
	}
}

// Clean drops one tile from the retryable list, typically after a
// successful replay.
func (f *FailList) Clean(id TileID) {
	conn := f.pool.Get()
	defer f.close(conn)
	if _, err := conn.Do("hdel", "fail_list:"+f.id, tileKey(id)); err != nil {
		log.Warnf("redis clean tile failure ~ %s", err)
	}
}

// Failures returns the retryable tiles currently on file.
func (f *FailList) Failures() []TileID {
	conn := f.pool.Get()
	defer f.close(conn)
	alls, err := redis.StringMap(conn.Do("hgetall", "fail_list:"+f.id))
	if err != nil {
		return nil
	}
	out := make([]TileID, 0, len(alls))
	for k := range alls {
		var te ErrTile
		if err := json.Unmarshal([]byte(alls[k]), &te); err != nil {
			continue
		}
		out = append(out, TileID{X: te.X, Y: te.Y, Z: te.Z})
	}
	return out
}

// SaveCursor persists the seed task's position for resume.
func (f *FailList) SaveCursor(zoom, col int) {
	conn := f.pool.Get()
	defer f.close(conn)
	val := strconv.Itoa(zoom) + ":" + strconv.Itoa(col)
	if _, err := conn.Do("set", "cursor:"+f.id, val); err != nil {
		log.Errorf("redis save cursor failure")
	}
}

// Cursor returns the saved position, or (-1, -1) when absent.
func (f *FailList) Cursor() (int, int) {
	conn := f.pool.Get()
	defer f.close(conn)
	reply, err := redis.String(conn.Do("get", "cursor:"+f.id))
	if err != nil {
		return -1, -1
	}
	cursor := strings.Split(reply, ":")
	if len(cursor) != 2 {
		return -1, -1
	}
	zoom, err := strconv.Atoi(cursor[0])
	if err != nil {
		return -1, -1
	}
	col, err := strconv.Atoi(cursor[1])
	if err != nil {
		return -1, -1
	}
	return zoom, col
}

// Reset removes every record the task left behind.
func (f *FailList) Reset() {
	conn := f.pool.Get()
	defer f.close(conn)
	_, _ = conn.Do("del", "cursor:"+f.id)
	_, _ = conn.Do("del", "nil_list:"+f.id)
	_, _ = conn.Do("del", "fail_list:"+f.id)
}

func (f *FailList) Close() error {
	return f.pool.Close()
}
