package main

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DatasetInfo names the sample dataset surfaced to the host.
type DatasetInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// SampleDataset is a one-time snapshot of decoded tile data the host
// can use as a non-tiled preview.
type SampleDataset struct {
	Info    DatasetInfo `json:"info"`
	AllData []Row       `json:"allData"`
	Fields  []Field     `json:"fields"`
}

// SampleSink receives the sample dataset; called at most once per
// Fetcher instance.
type SampleSink func(SampleDataset)

// FetcherConfig wires a Fetcher. Store, Fails and Sample are optional.
type FetcherConfig struct {
	BaseURL string
	MinZoom int
	MaxZoom int
	Client  *http.Client
	Store   TileStore
	Fails   *FailList
	Sample  SampleSink
}

// Fetcher requests encoded tiles from the upstream endpoint and decodes
// them into row/field data. The layer is only active inside its zoom
// gate; everything else is refused before touching the network.
type Fetcher struct {
	base    string
	minZoom int
	maxZoom int
	client  *http.Client
	store   TileStore
	fails   *FailList

	sampleMu     sync.Mutex
	sampleLoaded bool
	sample       SampleSink
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	minZoom, maxZoom := cfg.MinZoom, cfg.MaxZoom
	if minZoom == 0 && maxZoom == 0 {
		minZoom, maxZoom = StreetZoom, StreetZoom
	}
	return &Fetcher{
		base:    cfg.BaseURL,
		minZoom: minZoom,
		maxZoom: maxZoom,
		client:  client,
		store:   cfg.Store,
		fails:   cfg.Fails,
		sample:  cfg.Sample,
	}
}

func (f *Fetcher) tileURL(id TileID) string {
	return fmt.Sprintf("%s/%d-%d-%d-decoded", f.base, id.Z, id.X, id.Y)
}

// FetchEncoded returns the framed payload for a tile, consulting the
// local store before the network. Network responses are written back to
// the store best-effort.
func (f *Fetcher) FetchEncoded(id TileID) ([]byte, error) {
	if id.Z < f.minZoom || id.Z > f.maxZoom {
		return nil, fmt.Errorf("tile %s outside zoom range %d-%d", id, f.minZoom, f.maxZoom)
	}
	if f.store != nil {
		if buf, ok, err := f.store.Get(id); err != nil {
			log.Warnf("tile store read %s failed ~ %s", id, err)
		} else if ok {
			return buf, nil
		}
	}
	req, err := http.NewRequest(http.MethodGet, f.tileURL(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFail(id, err.Error())
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("response close failure")
		}
	}()
	if resp.StatusCode != http.StatusOK {
		f.recordFail(id, fmt.Sprintf("resp %d", resp.StatusCode))
		return nil, fmt.Errorf("fetch tile %s: status %d", id, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.recordFail(id, err.Error())
		return nil, err
	}
	if len(body) == 0 {
		f.recordFail(id, "nil tile")
		return nil, fmt.Errorf("fetch tile %s: empty body", id)
	}
	if f.store != nil {
		if err := f.store.Put(id, body); err != nil {
			log.Warnf("tile store write %s failed ~ %s", id, err)
		}
	}
	return body, nil
}

// GetTileData fetches and decodes one tile into rows and fields. The
// first successful decode across the Fetcher's lifetime additionally
// registers a sample of the data with the host, exactly once.
func (f *Fetcher) GetTileData(id TileID) ([]Row, []Field, error) {
	buf, err := f.FetchEncoded(id)
	if err != nil {
		return nil, nil, err
	}
	fc, err := DecodeTilePayload(buf)
	if err != nil {
		f.recordFail(id, err.Error())
		return nil, nil, err
	}
	rows, fields := ExtractTable(fc)
	f.registerSample(rows, fields)
	return rows, fields, nil
}

func (f *Fetcher) registerSample(rows []Row, fields []Field) {
	f.sampleMu.Lock()
	defer f.sampleMu.Unlock()
	if f.sampleLoaded || f.sample == nil {
		return
	}
	f.sampleLoaded = true
	f.sample(SampleDataset{
		Info:    DatasetInfo{ID: "sharedstreets", Label: "SharedStreets sample"},
		AllData: rows,
		Fields:  fields,
	})
}

func (f *Fetcher) recordFail(id TileID, reason string) {
	if f.fails != nil {
		f.fails.Record(id, reason)
	}
}
