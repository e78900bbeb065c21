//go:build gui

package gui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"habla/clipboard"
	"habla/pipeline"
	"habla/transcriber"
)

// Controller is the part of pipeline.Controller the window drives.
type Controller interface {
	Toggle(device string, size transcriber.ModelSize)
	Close() error
}

type Options struct {
	Devices []string
	Device  string
	Model   transcriber.ModelSize
	Version string
}

type App struct {
	ctrl   Controller
	events *pipeline.Queue
	opts   Options
	view   pipeline.View

	fyneApp fyne.App
	window  fyne.Window
	device  *widget.Select
	model   *widget.Select
	status  *widget.Label
	button  *widget.Button
	text    *widget.Label
	scroll  *container.Scroll
	trayRec *fyne.MenuItem
	closing bool
}

func NewApp(ctrl Controller, events *pipeline.Queue, opts Options) *App {
	return &App{ctrl: ctrl, events: events, opts: opts, view: pipeline.NewView()}
}

func modelNames() []string {
	out := make([]string, len(transcriber.ModelSizes))
	for i, s := range transcriber.ModelSizes {
		out[i] = string(s)
	}
	return out
}

// Run builds the window and blocks in the fyne event loop until the window
// is closed or Quit is called.
func (a *App) Run() error {
	a.fyneApp = app.NewWithID("io.habla.gui")
	a.fyneApp.Settings().SetTheme(newTranscriptTheme())
	a.window = a.fyneApp.NewWindow("Real-time Transcription & Translation")

	a.device = widget.NewSelect(a.opts.Devices, nil)
	if a.opts.Device != "" {
		a.device.SetSelected(a.opts.Device)
	} else if len(a.opts.Devices) > 0 {
		a.device.SetSelectedIndex(0)
	}
	a.model = widget.NewSelect(modelNames(), nil)
	a.model.SetSelected(string(a.opts.Model))

	a.status = widget.NewLabel(a.view.Status)
	a.button = widget.NewButtonWithIcon(a.view.Button, theme.MediaRecordIcon(), a.toggle)
	a.button.Importance = widget.HighImportance
	a.text = widget.NewLabel("")
	a.text.Wrapping = fyne.TextWrapWord
	a.scroll = container.NewVScroll(a.text)

	form := widget.NewForm(
		widget.NewFormItem("Microphone", a.device),
		widget.NewFormItem("Model", a.model),
	)
	copyBtn := widget.NewButtonWithIcon("Copy last", theme.ContentCopyIcon(), a.copyLast)
	top := container.NewVBox(form, container.NewHBox(a.button, copyBtn), a.status, widget.NewSeparator())
	a.window.SetContent(container.NewBorder(top, widget.NewLabel("habla "+a.opts.Version), nil, nil, a.scroll))
	a.window.Resize(fyne.NewSize(800, 600))

	if desk, ok := a.fyneApp.(desktop.App); ok {
		a.trayRec = fyne.NewMenuItem(pipeline.LabelStart, a.toggle)
		menu := fyne.NewMenu("habla", a.trayRec, fyne.NewMenuItem("Show", a.window.Show))
		desk.SetSystemTrayMenu(menu)
		desk.SetSystemTrayIcon(theme.MediaRecordIcon())
	}

	a.window.SetCloseIntercept(a.shutdown)

	done := make(chan struct{})
	defer close(done)
	go a.pump(done)

	a.window.ShowAndRun()
	return nil
}

// Quit closes the session and the window, as the window's close button does.
// Safe from any goroutine.
func (a *App) Quit() {
	if a.fyneApp != nil {
		fyne.Do(a.shutdown)
	}
}

// shutdown runs on the fyne goroutine. The controller is closed off it so the
// pump can keep delivering the final events.
func (a *App) shutdown() {
	if a.closing {
		return
	}
	a.closing = true
	a.status.SetText("Closing...")
	a.button.Disable()
	go func() {
		a.ctrl.Close()
		fyne.Do(a.fyneApp.Quit)
	}()
}

func (a *App) toggle() {
	a.ctrl.Toggle(a.device.Selected, transcriber.ModelSize(a.model.Selected))
}

func (a *App) copyLast() {
	ok, err := clipboard.CopyLast(a.view.Text)
	switch {
	case err != nil:
		a.status.SetText("Clipboard: " + err.Error())
	case ok:
		a.status.SetText("Copied last line")
	}
}

// pump moves queued controller events onto the fyne goroutine.
func (a *App) pump(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-a.events.Notify():
			evs := a.events.Drain()
			if len(evs) == 0 {
				continue
			}
			fyne.Do(func() { a.apply(evs) })
		}
	}
}

func (a *App) apply(evs []pipeline.Event) {
	for _, e := range evs {
		a.view.Apply(e)
	}
	if !a.closing {
		a.status.SetText(a.view.Status)
	}
	a.button.SetText(a.view.Button)
	if a.trayRec != nil {
		a.trayRec.Label = a.view.Button
	}
	if a.view.State == pipeline.Recording {
		a.button.SetIcon(theme.MediaStopIcon())
		a.device.Disable()
		a.model.Disable()
	} else {
		a.button.SetIcon(theme.MediaRecordIcon())
		a.device.Enable()
		a.model.Enable()
	}
	if a.text.Text != a.view.Text {
		a.text.SetText(a.view.Text)
		a.scroll.ScrollToBottom()
	}
}
