package main

import (
	"errors"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// SeedTask bulk-downloads every street tile intersecting a bounding box
// into the local tile store, so the layer can serve from disk instead
// of hammering the upstream endpoint. Fetching runs through a bounded
// worker pool; writes are batched through a saving pipe.
type SeedTask struct {
	ID       string
	Bound    LngLatBbox
	Zoom     int
	Total    int
	StartCol int

	fetcher      *Fetcher
	store        TileStore
	fails        *FailList
	workerCount  int
	savePipeSize int

	wg      sync.WaitGroup
	saveWg  sync.WaitGroup
	workers chan TileID
	pipe    chan EncodedTile
	abort   chan struct{}
	done    chan struct{}
}

// NewSeedTask builds a task over the given bound. The fetcher must not
// carry its own store; the task owns all writes. Passing a previous
// task id resumes from its saved cursor.
func NewSeedTask(fetcher *Fetcher, store TileStore, fails *FailList, bound LngLatBbox, id string) (*SeedTask, error) {
	if store == nil {
		return nil, errors.New("seed task needs a tile store")
	}
	task := &SeedTask{
		ID:           id,
		Bound:        bound,
		Zoom:         StreetZoom,
		StartCol:     -1,
		fetcher:      fetcher,
		store:        store,
		fails:        fails,
		workerCount:  viper.GetInt("task.workers"),
		savePipeSize: viper.GetInt("task.savepipe"),
		abort:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.workerCount <= 0 {
		task.workerCount = 4
	}
	if task.savePipeSize <= 0 {
		task.savePipeSize = 8
	}
	task.Total = TileCount(&bound, task.Zoom)
	task.workers = make(chan TileID, task.workerCount)
	task.pipe = make(chan EncodedTile, task.savePipeSize)
	if fails != nil {
		if cz, cx := fails.Cursor(); cz == task.Zoom {
			task.StartCol = cx
		}
	}
	return task, nil
}

// savePipe drains fetched tiles into the store in batches.
func (task *SeedTask) savePipe() {
	defer task.saveWg.Done()
	var batch []EncodedTile
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := task.store.PutBatch(batch); err != nil {
			log.Errorf("save batch to tile store error ~ %s", err)
			if task.fails != nil {
				for _, t := range batch {
					task.fails.Record(t.ID, "save failure")
				}
			}
		}
		batch = nil
	}
	for tile := range task.pipe {
		batch = append(batch, tile)
		if len(batch) == task.savePipeSize {
			flush()
		}
	}
	flush()
}

func (task *SeedTask) fetchOne(id TileID, isRetry bool) {
	defer func() {
		task.wg.Done()
		<-task.workers
	}()
	buf, err := task.fetcher.FetchEncoded(id)
	if err != nil {
		// FetchEncoded already filed the failure.
		log.Errorf("fetch %s error ~ %s", id, err)
		return
	}
	select {
	case task.pipe <- EncodedTile{ID: id, C: buf}:
	case <-task.abort:
		return
	}
	if isRetry && task.fails != nil {
		task.fails.Clean(id)
	}
}

// retryLoop replays the fail list every few seconds until the task ends.
func (task *SeedTask) retryLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-task.done:
			return
		case <-ticker.C:
			if task.fails == nil {
				continue
			}
			for _, id := range task.fails.Failures() {
				select {
				case task.workers <- id:
					task.wg.Add(1)
					go task.fetchOne(id, true)
				case <-task.done:
					return
				}
			}
		}
	}
}

// Abort stops tile enumeration; in-flight fetches drain normally.
func (task *SeedTask) Abort() {
	close(task.abort)
}

// Run downloads the whole bound, blocking until the store is flushed.
func (task *SeedTask) Run() error {
	log.Infof("seed task %s: %d tiles at z%d", task.ID, task.Total, task.Zoom)
	bar := pb.StartNew(task.Total)
	task.saveWg.Add(1)
	go task.savePipe()
	go task.retryLoop()

	curCol := -1
	aborted := false
	TileRange(&task.Bound, task.Zoom, func(id TileID) bool {
		if task.StartCol != -1 && id.X < task.StartCol {
			bar.Increment()
			return true
		}
		if id.X != curCol {
			curCol = id.X
			if task.fails != nil {
				task.fails.SaveCursor(task.Zoom, curCol)
			}
		}
		select {
		case task.workers <- id:
			bar.Increment()
			task.wg.Add(1)
			go task.fetchOne(id, false)
			return true
		case <-task.abort:
			aborted = true
			return false
		}
	})
	// Stop the retry loop before draining, so no late replay can write
	// into a closed pipe.
	close(task.done)
	task.wg.Wait()
	close(task.pipe)
	task.saveWg.Wait()
	bar.Finish()
	if aborted {
		log.Infof("seed task %s got canceled", task.ID)
		return errors.New("seed task aborted")
	}
	if task.fails != nil && len(task.fails.Failures()) == 0 {
		task.fails.Reset()
	}
	log.Infof("seed task %s finished ~", task.ID)
	return nil
}
