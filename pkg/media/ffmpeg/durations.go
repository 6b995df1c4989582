package ffmpeg

import "github.com/asticode/go-astiav"

// maxPending bounds the packets waiting for their frame, codecs that drop
// frames would otherwise leave entries behind forever.
const maxPending = 64

// durations remembers packet durations by pts until the decoder hands out
// the frame carrying that pts.
type durations struct {
	byPts map[int64]int64
}

func (d *durations) add(pts, duration int64) {
	if pts == astiav.NoPtsValue || duration <= 0 {
		return
	}
	if d.byPts == nil || len(d.byPts) >= maxPending {
		d.byPts = make(map[int64]int64)
	}
	d.byPts[pts] = duration
}

// take returns 0 for unknown timestamps.
func (d *durations) take(pts int64) int64 {
	v, ok := d.byPts[pts]
	if ok {
		delete(d.byPts, pts)
	}
	return v
}

func (d *durations) reset() { d.byPts = nil }
