package main

import (
	"os"

	"github.com/spf13/afero"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd(afero.NewOsFs()).Execute(); err != nil {
		os.Exit(1)
	}
}
