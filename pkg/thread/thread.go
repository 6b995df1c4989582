// Package thread pins the frame loop to the main OS thread.
// Windowing and GL contexts are only valid on the thread that created them.
// See: https://github.com/golang/go/wiki/LockOSThread
package thread

import (
	"sync/atomic"

	"github.com/faiface/mainthread"
)

var running atomic.Bool

// Main runs f while the main OS thread serves Call.
// It returns when f returns.
func Main(f func()) {
	running.Store(true)
	defer running.Store(false)
	mainthread.Run(f)
}

// Call runs f on the main thread and waits for it.
// Outside of Main it runs f in place.
func Call(f func()) {
	if !running.Load() {
		f()
		return
	}
	mainthread.Call(f)
}

// CallErr is Call for functions that fail.
func CallErr(f func() error) error {
	if !running.Load() {
		return f()
	}
	return mainthread.CallErr(f)
}
