package main

import (
	"github.com/sidkik/nowsync/cmd"
	"github.com/sidkik/nowsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
