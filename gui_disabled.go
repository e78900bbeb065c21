//go:build !gui

package main

import (
	"errors"
	"os"

	"habla/pipeline"
)

func runGUI(*app, *pipeline.Queue, <-chan os.Signal) error {
	return errors.New("built without GUI support (rebuild with -tags gui)")
}
