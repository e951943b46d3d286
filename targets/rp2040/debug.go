//go:build rp2040

package main

import "pipetter/core"

// Debug lines share the USB console as "// " comments, which the host
// skips. The main loop owns the USB writes, so the writer only queues.
var debugLines = make(chan string, 64)

func initDebug() {
	core.SetDebugWriter(func(s string) {
		select {
		case debugLines <- s:
		default:
			// Full while the main loop is busy in a move
		}
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
}

// flushDebug writes queued debug lines. Main loop only.
func flushDebug() {
	for {
		select {
		case s := <-debugLines:
			writeUSB([]byte("// " + s + "\n"))
		default:
			return
		}
	}
}
