package simulate

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// logInterval defines how often to log skipped tick statistics
const logInterval = 30 * time.Second

// WallTicker delivers ticks aligned to multiples of the wall clock period, e.g. every 20ms
// on the 20ms boundary, correcting for timer drift with an exponentially smoothed skew.
type WallTicker struct {
	C <-chan time.Time

	align    time.Duration
	offset   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	c        chan time.Time

	// dropTicks drops ticks the receiver is not ready for instead of waiting
	dropTicks bool
	observe   func(skew, delay float64)
	logger    *log.Logger

	skew         float64
	d            time.Duration
	last         time.Time
	skippedTicks int64
	lastLogTime  time.Time
}

// NewWallTicker starts a ticker with period align shifted by offset. observe, when not nil,
// receives the skew factor and next delay in seconds before every tick is scheduled.
func NewWallTicker(align, offset time.Duration, dropTicks bool, observe func(skew, delay float64)) *WallTicker {
	now := time.Now()
	w := &WallTicker{
		align:       align,
		offset:      offset,
		stop:        make(chan struct{}),
		c:           make(chan time.Time, 1),
		dropTicks:   dropTicks,
		observe:     observe,
		logger:      log.StandardLogger(),
		skew:        1.0,
		lastLogTime: now,
	}
	w.C = w.c
	w.start()
	return w
}

// SetLogger sets the logger used for dropped tick reports
func (w *WallTicker) SetLogger(logger *log.Logger) {
	w.logger = logger
}

func (w *WallTicker) start() {
	now := time.Now()
	d := time.Until(now.Add(-w.offset).Add(w.align * 4 / 3).Truncate(w.align).Add(w.offset))
	d = time.Duration(float64(d) / w.skew)
	w.d = d
	w.last = now

	if w.observe != nil {
		w.observe(w.skew, d.Seconds())
	}

	time.AfterFunc(d, w.tick)
}

func (w *WallTicker) tick() {
	const α = 0.7

	select {
	case <-w.stop:
		return
	default:
	}

	now := time.Now()
	if now.After(w.last) {
		w.skew = w.skew*α + (float64(now.Sub(w.last))/float64(w.d))*(1-α)

		if w.dropTicks {
			select {
			case <-w.stop:
				return
			case w.c <- now:
			default:
				w.skippedTicks++
				if now.Sub(w.lastLogTime) >= logInterval {
					w.logger.WithField("skipped_ticks", w.skippedTicks).Warnf("Dropped %d ticks in the last %v", w.skippedTicks, logInterval)
					w.skippedTicks = 0
					w.lastLogTime = now
				}
			}
		} else {
			select {
			case <-w.stop:
				return
			case w.c <- now:
			}
		}
	}
	w.start()
}

// Stop ends the ticker; it is safe to call more than once
func (w *WallTicker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
