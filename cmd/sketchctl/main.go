// Command sketchctl is a terminal client for sketchduel rooms.
//
// It creates, joins or resumes a room and then reads game commands from
// stdin. Connection loss, server restarts and inconsistent updates are
// recovered automatically; anything that needs a decision is printed as a
// notice.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
