package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/smarty/antikinst/contracts"
)

// ExtractionTask runs one extraction off the caller's goroutine.
type ExtractionTask struct {
	key      string
	cancel   context.CancelFunc
	progress chan contracts.Progress
	done     chan struct{}

	report ExtractionReport
	err    error
}

// StartExtraction refuses to start while another task in this process is
// extracting into the same root.
func StartExtraction(ctx context.Context, extractor Extractor, request ExtractionRequest) (*ExtractionTask, error) {
	key := request.Key
	if key == "" {
		key = request.Target
	}
	key = inflightKey(key)
	if !inflight.acquire(key) {
		return nil, fmt.Errorf("%w: %q", contracts.ErrExtractionInProgress, key)
	}

	ctx, cancel := context.WithCancel(ctx)
	this := &ExtractionTask{
		key:      key,
		cancel:   cancel,
		progress: make(chan contracts.Progress, 1),
		done:     make(chan struct{}),
	}
	forward := request.OnProgress
	request.OnProgress = func(progress contracts.Progress) {
		if forward != nil {
			forward(progress)
		}
		this.publish(progress)
	}
	go this.run(ctx, extractor, request)
	return this, nil
}

func (this *ExtractionTask) run(ctx context.Context, extractor Extractor, request ExtractionRequest) {
	defer close(this.done)
	defer inflight.release(this.key)
	defer close(this.progress)
	defer this.cancel()

	this.report, this.err = extractor.Extract(ctx, request)
}

// publish replaces an unread update rather than blocking the extraction.
func (this *ExtractionTask) publish(progress contracts.Progress) {
	for {
		select {
		case this.progress <- progress:
			return
		default:
		}
		select {
		case <-this.progress:
		default:
		}
	}
}

// Progress is closed when the extraction ends.
func (this *ExtractionTask) Progress() <-chan contracts.Progress {
	return this.progress
}

func (this *ExtractionTask) Done() <-chan struct{} {
	return this.done
}

func (this *ExtractionTask) Cancel() {
	this.cancel()
}

func (this *ExtractionTask) Wait() (ExtractionReport, error) {
	<-this.done
	return this.report, this.err
}

////////////////////////////////////////

type inflightTargets struct {
	mutex   sync.Mutex
	targets map[string]struct{}
}

var inflight = &inflightTargets{targets: make(map[string]struct{})}

func (this *inflightTargets) acquire(key string) bool {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	if _, busy := this.targets[key]; busy {
		return false
	}
	this.targets[key] = struct{}{}
	return true
}

func (this *inflightTargets) release(key string) {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	delete(this.targets, key)
}

func inflightKey(path string) string {
	if absolute, err := filepath.Abs(path); err == nil {
		return absolute
	}
	return filepath.Clean(path)
}
