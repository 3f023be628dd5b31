package staradventurer

import (
	"fmt"
	"sync"
)

// DecChange is a declination move the operator has to make by hand.
type DecChange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
	// MeridianFlip is set when the slew swapped pier sides, which turns
	// the declination axis over.
	MeridianFlip bool `json:"meridian_flip"`
}

// Degrees is the signed change in declination.
func (d DecChange) Degrees() float64 {
	return d.To - d.From
}

func (d DecChange) String() string {
	s := fmt.Sprintf("%+.4f° (%.4f° to %.4f°)", d.Degrees(), d.From, d.To)
	if d.MeridianFlip {
		s += " with meridian flip"
	}
	return s
}

// declination tracks the single pending manual declination change.
type declination struct {
	setting *locked[float64]

	mu      sync.Mutex
	pending *DecChange
}

// begin records a change to dec. A change still pending is committed
// first. With instant set the new change is committed immediately.
func (d *declination) begin(dec float64, flip, instant bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.setting.Set(d.pending.To)
		d.pending = nil
	}
	from := d.setting.Get()
	if instant {
		d.setting.Set(dec)
		return
	}
	if from == dec && !flip {
		return
	}
	d.pending = &DecChange{From: from, To: dec, MeridianFlip: flip}
}

func (d *declination) Pending() (DecChange, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return DecChange{}, false
	}
	return *d.pending, true
}

// finish commits the pending change, if any.
func (d *declination) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.setting.Set(d.pending.To)
		d.pending = nil
	}
}

// abort drops the pending change, leaving the declination where it was.
func (d *declination) abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
}

// reset replaces the declination outright, as a sync does.
func (d *declination) reset(dec float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	d.setting.Set(dec)
}
