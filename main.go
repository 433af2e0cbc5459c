package main

import (
	"os"

	"github.com/Daw588/lavender/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
