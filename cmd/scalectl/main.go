package main

import (
	"os"

	"github.com/tao-j/helvetic/cmd/scalectl/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
