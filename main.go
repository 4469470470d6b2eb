package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

//flag
var (
	hf bool
	cf string
	mf string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&mf, "m", "serve", "run `mode`: serve or seed")
	flag.Usage = usage
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	file, err := os.OpenFile("layer.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err == nil {
		log.SetOutput(io.MultiWriter(file, os.Stdout))
	} else {
		log.Info("failed to log to file.")
	}
	log.SetLevel(log.DebugLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `sharedstreets-layer version: sharedstreets-layer/1.0
Usage: sharedstreets-layer [-h] [-c filename] [-m serve|seed]
`)
	flag.PrintDefaults()
}

//initConf reads the config file and fills the defaults in.
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("app.version", "v 1.0.0")
	viper.SetDefault("app.title", "SharedStreets Tile Layer")
	viper.SetDefault("upstream.url", "http://localhost:3000")
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("output.format", "mbtiles")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("output.name", "sharedstreets")
	viper.SetDefault("cache.olddata", 512)
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("task.savepipe", 8)
}

func newHTTPClient(workers int) *http.Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: workers,
		MaxConnsPerHost:     workers,
		MaxIdleConns:        workers,
		IdleConnTimeout:     time.Second * 5,
	}
	return &http.Client{Transport: transport, Timeout: time.Minute * 5}
}

func configuredLayers() []RenderLayer {
	type cfgLayer struct {
		ID     string
		Type   string
		Color  string
		Width  float64
		Radius float64
	}
	var cfgLrs []cfgLayer
	if err := viper.UnmarshalKey("layers", &cfgLrs); err != nil {
		log.Fatalf("layers config error: %s", err)
	}
	var layers []RenderLayer
	for _, lr := range cfgLrs {
		switch lr.Type {
		case "point":
			layers = append(layers, &PointLayer{LayerID: lr.ID, Color: lr.Color, Radius: lr.Radius})
		default:
			layers = append(layers, &LineLayer{LayerID: lr.ID, Color: lr.Color, Width: lr.Width})
		}
	}
	if len(layers) == 0 {
		layers = []RenderLayer{
			&LineLayer{LayerID: "street-line", Color: "#1FBAD6", Width: 2},
			&PointLayer{LayerID: "street-point", Color: "#F7B500", Radius: 3},
		}
	}
	return layers
}

func runSeed(fails *FailList) {
	store, err := OpenTileStore(
		viper.GetString("output.format"),
		viper.GetString("output.name"),
		viper.GetString("output.directory"),
		viper.GetString("output.conn"),
	)
	if err != nil {
		log.Fatalf("open tile store: %s", err)
	}
	if store == nil {
		log.Fatal("seed mode needs output.format mbtiles or mysql")
	}
	defer store.Close()
	fetcher := NewFetcher(FetcherConfig{
		BaseURL: viper.GetString("upstream.url"),
		Client:  newHTTPClient(viper.GetInt("task.workers")),
		Fails:   fails,
	})
	bound := LngLatBbox{
		West:  viper.GetFloat64("seed.west"),
		South: viper.GetFloat64("seed.south"),
		East:  viper.GetFloat64("seed.east"),
		North: viper.GetFloat64("seed.north"),
	}
	task, err := NewSeedTask(fetcher, store, fails, bound, viper.GetString("task.id"))
	if err != nil {
		log.Fatalf("create seed task: %s", err)
	}
	start := time.Now()
	if err := task.Run(); err != nil {
		log.Fatalf("seed task: %s", err)
	}
	fmt.Printf("\n%.3fs finished...", time.Since(start).Seconds())
}

func runServe(fails *FailList) {
	store, err := OpenTileStore(
		viper.GetString("output.format"),
		viper.GetString("output.name"),
		viper.GetString("output.directory"),
		viper.GetString("output.conn"),
	)
	if err != nil {
		log.Fatalf("open tile store: %s", err)
	}
	if store != nil {
		defer store.Close()
	}
	sample := &SampleHolder{}
	fetcher := NewFetcher(FetcherConfig{
		BaseURL: viper.GetString("upstream.url"),
		Client:  newHTTPClient(viper.GetInt("task.workers")),
		Store:   store,
		Fails:   fails,
		Sample:  sample.Set,
	})
	reg := NewLayerRegistry(configuredLayers()...)
	srv := NewServer(fetcher, reg, sample, viper.GetInt("cache.olddata"))
	if err := srv.Run(viper.GetString("server.addr")); err != nil {
		log.Fatalf("server: %s", err)
	}
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)

	var fails *FailList
	if addr := viper.GetString("redis.addr"); addr != "" {
		id := viper.GetString("task.id")
		if id == "" {
			id = uuid.New().String()
		}
		fails = NewFailList(id, addr)
		defer fails.Close()
	}

	switch mf {
	case "seed":
		runSeed(fails)
	default:
		runServe(fails)
	}
}
