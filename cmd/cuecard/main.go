// Command cuecard is a cue card and teleprompter for stand-up comedians. It
// follows a set by listening for trigger phrases, records the performance and
// keeps a history of how each run went.
//
// Usage:
//
//	cuecard segment friday.yaml                # show units and trigger phrases
//	cuecard rehearse friday.yaml --cues run.txt # replay a timed transcript
//	cuecard rehearse friday.yaml               # type phrases on stdin
//	cuecard perform friday.yaml --input mic.pcm
//	cuecard history "Friday late"
package main

import (
	"os"

	"github.com/MrWong99/cuecard/cmd/cuecard/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
