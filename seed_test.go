package main

import (
	"testing"
)

func TestSeedTaskFillsStore(t *testing.T) {
	srv := tileEndpoint(t, 2, nil)
	defer srv.Close()
	store := newFakeStore()
	fetcher := NewFetcher(FetcherConfig{BaseURL: srv.URL})

	// A bound slightly inside one z12 tile plus its neighbors.
	b := TileID{X: 2200, Y: 1343, Z: 12}.Bounds()
	inset := (b.East - b.West) / 10
	bound := LngLatBbox{
		West:  b.West + inset,
		South: b.South + inset,
		East:  b.East + inset*3,
		North: b.North - inset,
	}
	task, err := NewSeedTask(fetcher, store, nil, bound, "")
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Zoom != StreetZoom {
		t.Fatalf("task zoom = %d, want %d", task.Zoom, StreetZoom)
	}
	if task.Total == 0 {
		t.Fatal("task covers no tiles")
	}
	if err := task.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	n, _ := store.Count()
	if n != task.Total {
		t.Fatalf("store holds %d tiles, task total %d", n, task.Total)
	}
}

func TestSeedTaskNeedsStore(t *testing.T) {
	fetcher := NewFetcher(FetcherConfig{BaseURL: "http://tiles.example"})
	if _, err := NewSeedTask(fetcher, nil, nil, LngLatBbox{}, ""); err == nil {
		t.Fatal("expected error without a store")
	}
}
