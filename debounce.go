package caselist

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a search input settles.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces rapid calls into a single deferred one. Each call
// cancels any pending timer and starts a new one, so only the last call in
// a burst fires.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	closed   bool
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(duration time.Duration) *Debouncer {
	if duration <= 0 {
		duration = DefaultDebounce
	}
	return &Debouncer{duration: duration}
}

// Debounce schedules fn to run after the quiet period, replacing any
// previously scheduled call. After Close it is a no-op.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel drops any pending call without closing the debouncer.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Close cancels any pending call and rejects future ones. Used on screen
// teardown so nothing fires after disposal.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// SearchDebouncer turns a stream of keystroke-driven text values into a
// settled value emitted after the quiet period. The emitted value is always
// the newest one seen, including the empty string when the field is cleared.
type SearchDebouncer struct {
	debouncer *Debouncer
	emit      func(string)

	mu      sync.Mutex
	pending string
}

// NewSearchDebouncer creates a bridge that calls emit with the settled text.
// emit runs on the timer goroutine.
func NewSearchDebouncer(duration time.Duration, emit func(string)) *SearchDebouncer {
	return &SearchDebouncer{
		debouncer: NewDebouncer(duration),
		emit:      emit,
	}
}

// Input records a new text value and restarts the quiet-period timer.
func (sd *SearchDebouncer) Input(text string) {
	sd.mu.Lock()
	sd.pending = text
	sd.mu.Unlock()

	sd.debouncer.Debounce(func() {
		sd.mu.Lock()
		value := sd.pending
		sd.mu.Unlock()
		sd.emit(value)
	})
}

// Flush emits the newest value immediately, cancelling any pending timer.
func (sd *SearchDebouncer) Flush() {
	sd.debouncer.Cancel()
	sd.mu.Lock()
	value := sd.pending
	sd.mu.Unlock()
	sd.emit(value)
}

// Close cancels any pending emission permanently.
func (sd *SearchDebouncer) Close() {
	sd.debouncer.Close()
}
