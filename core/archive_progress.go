package core

import (
	"io"
	"math"
	"strconv"
	"time"

	"github.com/smarty/antikinst/contracts"
)

var sizeUnits = [...]string{"B", "KB", "MB", "GB", "TB"}

// round keeps places decimals, rounding up once the dropped fraction reaches
// threshold.
func round(value, threshold float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	whole, fraction := math.Modf(value * scale)
	if fraction >= threshold {
		whole++
	}
	return whole / scale
}

func humanFileSize(size float64) string {
	if size < 1 {
		return "0 B"
	}
	unit := min(int(math.Log(size)/math.Log(1024)), len(sizeUnits)-1)
	scaled := round(size/math.Pow(1024, float64(unit)), .5, 2)
	return strconv.FormatFloat(scaled, 'f', -1, 64) + " " + sizeUnits[unit]
}

// archiveProgressCounter reports bytes written every interval until closed.
type archiveProgressCounter struct {
	written    int64
	total      string
	onProgress func(written string, total string)
	printTimer *time.Ticker
	done       chan struct{}
	updates    chan int64
}

func (this *archiveProgressCounter) Write(p []byte) (n int, e error) {
	n = len(p)
	this.updates <- int64(n)
	return
}

func (this *archiveProgressCounter) Close() error {
	close(this.updates)
	<-this.done
	this.printTimer.Stop()
	this.reportProgress()
	return nil
}

func (this *archiveProgressCounter) reportProgress() {
	this.onProgress(humanFileSize(float64(this.written)), this.total)
}

func newArchiveProgressCounter(size int64, interval time.Duration, onProgress func(written, total string)) io.WriteCloser {
	this := &archiveProgressCounter{total: humanFileSize(float64(size)), onProgress: onProgress}
	this.printTimer = time.NewTicker(interval)
	this.done = make(chan struct{})
	this.updates = make(chan int64)
	go func() {
		defer close(this.done)
		for {
			select {
			case <-this.printTimer.C:
				this.reportProgress()
			case count, open := <-this.updates:
				if !open {
					return
				}
				this.written += count
			}
		}
	}()
	return this
}

////////////////////////////////////////

// entryProgressCounter converts processed entry counts into a percentage that
// only ever increases.
type entryProgressCounter struct {
	total      int
	processed  int
	percent    int
	onProgress func(contracts.Progress)
}

func newEntryProgressCounter(total int, onProgress func(contracts.Progress)) *entryProgressCounter {
	if onProgress == nil {
		onProgress = func(contracts.Progress) {}
	}
	return &entryProgressCounter{total: total, percent: -1, onProgress: onProgress}
}

func (this *entryProgressCounter) Advance() {
	this.processed++
	this.report()
}

// Finish reports completion once, even for an empty container.
func (this *entryProgressCounter) Finish() {
	if this.percent < 100 {
		this.processed = this.total
		this.report()
	}
}

func (this *entryProgressCounter) report() {
	percent := 100
	if this.total > 0 {
		percent = this.processed * 100 / this.total
	}
	if percent <= this.percent {
		return
	}
	this.percent = percent
	this.onProgress(contracts.Progress{Processed: this.processed, Total: this.total, Percent: percent})
}
