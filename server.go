package main

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// SampleHolder keeps the one-time sample dataset the fetcher registers.
type SampleHolder struct {
	mu sync.Mutex
	ds *SampleDataset
}

func (h *SampleHolder) Set(ds SampleDataset) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ds = &ds
	log.Infof("sample dataset %s registered: %d rows", ds.Info.ID, len(ds.AllData))
}

func (h *SampleHolder) Get() *SampleDataset {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ds
}

// Server plays the host role over HTTP: it acquires tiles, triggers
// sub-layer renders, bumps layer versions and resolves picks.
type Server struct {
	eng      *gin.Engine
	set      *TileSet
	reg      *LayerRegistry
	cache    *LayerDataCache
	renderer *SubLayerRenderer
	sample   *SampleHolder
	redraws  uint64
}

// NewServer wires the render pipeline around the fetcher's data source.
func NewServer(fetcher *Fetcher, reg *LayerRegistry, sample *SampleHolder, oldDataCap int) *Server {
	s := &Server{reg: reg, sample: sample}
	s.cache = NewLayerDataCache(s.requestRedraw)
	s.set = NewTileSet(fetcher.GetTileData)
	s.renderer = NewSubLayerRenderer(reg, s.cache, NewOldDataCache(oldDataCap))
	s.eng = gin.Default()
	s.routes()
	return s
}

// requestRedraw is the continuation a pending tile resolves into. A
// browser host would repaint; here the counter makes the effect
// observable and the next render pass picks up the loaded data.
func (s *Server) requestRedraw() {
	atomic.AddUint64(&s.redraws, 1)
}

func (s *Server) routes() {
	s.eng.GET("/health", s.handleHealth)
	s.eng.GET("/sample", s.handleSample)
	s.eng.GET("/layers", s.handleLayers)
	s.eng.POST("/layers/:id/touch", s.handleTouch)
	s.eng.GET("/tiles/:z/:x/:y", s.handleTile)
	s.eng.GET("/render/:z/:x/:y", s.handleRender)
	s.eng.POST("/pick", s.handlePick)
	s.eng.DELETE("/tiles/:z/:x/:y", s.handleEvict)
}

func parseTileID(c *gin.Context) (TileID, bool) {
	z, errZ := strconv.Atoi(c.Param("z"))
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errZ != nil || errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad tile coordinate"})
		return TileID{}, false
	}
	id := TileID{X: x, Y: y, Z: z}
	if !id.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tile " + id.String()})
		return TileID{}, false
	}
	return id, true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"tiles":   s.set.Len(),
		"redraws": atomic.LoadUint64(&s.redraws),
	})
}

func (s *Server) handleSample(c *gin.Context) {
	ds := s.sample.Get()
	if ds == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sample registered yet"})
		return
	}
	c.JSON(http.StatusOK, ds)
}

func (s *Server) handleLayers(c *gin.Context) {
	type layerInfo struct {
		ID      string `json:"id"`
		Version uint64 `json:"version"`
	}
	var out []layerInfo
	for _, l := range s.reg.Layers() {
		out = append(out, layerInfo{ID: l.ID(), Version: s.reg.Version(l.ID())})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleTouch(c *gin.Context) {
	id := c.Param("id")
	if !s.reg.Touch(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown layer " + id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "version": s.reg.Version(id)})
}

func (s *Server) handleTile(c *gin.Context) {
	id, ok := parseTileID(c)
	if !ok {
		return
	}
	tile := s.set.Acquire(id)
	rows, fields := tile.Data()
	c.JSON(http.StatusOK, gin.H{
		"tile":     id,
		"loaded":   tile.Loaded(),
		"fields":   fields,
		"rowCount": len(rows),
		"allData":  rows,
	})
}

func (s *Server) handleRender(c *gin.Context) {
	id, ok := parseTileID(c)
	if !ok {
		return
	}
	tile := s.set.Acquire(id)
	subs := s.renderer.RenderSubLayers(tile, c.Query("highlight"))
	c.JSON(http.StatusOK, gin.H{
		"tile":      id,
		"loaded":    tile.Loaded(),
		"subLayers": subs,
	})
}

func (s *Server) handlePick(c *gin.Context) {
	var info PickInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ResolvePick(&info, s.set.Visible()))
}

func (s *Server) handleEvict(c *gin.Context) {
	id, ok := parseTileID(c)
	if !ok {
		return
	}
	s.set.Evict(id)
	c.JSON(http.StatusOK, gin.H{"evicted": id})
}

func (s *Server) Run(addr string) error {
	log.Infof("layer host listening on %s", addr)
	return s.eng.Run(addr)
}
