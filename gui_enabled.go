//go:build gui

package main

import (
	"os"

	"habla/gui"
	"habla/log"
	"habla/pipeline"
)

func runGUI(a *app, q *pipeline.Queue, sigs <-chan os.Signal) error {
	g := gui.NewApp(a.ctrl, q, gui.Options{
		Devices: a.devices,
		Device:  a.cfg.Device,
		Model:   a.model,
		Version: version,
	})
	go func() {
		<-sigs
		log.Info("signal received, closing")
		g.Quit()
	}()
	err := g.Run()
	a.ctrl.Close()
	return err
}
