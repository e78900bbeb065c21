package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"habla/api"
	"habla/audio"
	"habla/beep"
	"habla/config"
	"habla/doctor"
	"habla/log"
	"habla/pipeline"
	"habla/session"
	"habla/shutdown"
	"habla/transcriber"
	"habla/translator"
)

var version = "dev"

// app is everything a front end needs to drive a session.
type app struct {
	cfg     config.Config
	ctrl    *pipeline.Controller
	audio   audio.Context
	store   *session.Store
	model   transcriber.ModelSize
	devices []string
}

func main() {
	os.Exit(run())
}

func run() int {
	configFlag := flag.String("config", "", "TOML config file (default: $XDG_CONFIG_HOME/habla/config.toml)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	modelFlag := flag.String("model", "", "Whisper model size: tiny, base, small, medium or large")
	providerFlag := flag.String("provider", "", "Transcription provider: local, openai, groq, deepgram or fake")
	sessionsFlag := flag.String("sessions", "", "Directory that holds session folders")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	logLevelFlag := flag.String("loglevel", "", "Diagnostics log level: debug, info, warn or error")
	setupFlag := flag.Bool("setup", false, "Pick the microphone interactively before starting")
	listFlag := flag.Bool("list-devices", false, "Print input devices and exit")
	historyFlag := flag.Bool("history", false, "Print past sessions and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	apiFlag := flag.Bool("api", false, "Serve the HTTP API alongside the UI")
	guiFlag := flag.Bool("gui", false, "Run with the desktop window instead of the terminal UI")
	noBeepFlag := flag.Bool("nobeep", false, "Disable start/stop cues")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven, audio from the WAV argument)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("habla %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = *deviceFlag
		case "model":
			cfg.Model = *modelFlag
		case "provider":
			cfg.Transcriber.Provider = *providerFlag
		case "sessions":
			cfg.SessionsDir = *sessionsFlag
		case "loglevel":
			cfg.LogLevel = *logLevelFlag
		case "nobeep":
			cfg.Beep = !*noBeepFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		return 1
	}
	model, _ := transcriber.ParseModelSize(cfg.Model)

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		log.Warnf("log level: %v", err)
	}
	if cfg.Source != "" {
		log.Info("config loaded from " + cfg.Source)
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	store := session.NewStore(cfg.SessionsDir)
	if *historyFlag {
		return printHistory(store)
	}

	var actx audio.Context
	var fake *audio.FakeContext
	if *testFlag {
		if flag.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: habla -test <wav-file>")
			return 1
		}
		fake, err = audio.NewFakeContextFromWAV(flag.Arg(0), true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
			return 1
		}
		actx = fake
	} else {
		actx, err = audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
			return 1
		}
	}
	defer actx.Close()
	catalog := audio.NewCatalog(actx)

	if *listFlag {
		for _, d := range catalog.ListInputDevices() {
			fmt.Println(d.Name)
		}
		return 0
	}

	trans, err := transcriber.New(cfg.TranscriberOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	backend, err := translator.NewBackend(cfg.TranslatorOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	tl := translator.NewService(backend)

	if *doctorFlag {
		return doctor.Main(doctor.Options{
			Audio:       actx,
			Device:      cfg.Device,
			Transcriber: trans,
			Model:       model,
			Translator:  tl,
		})
	}

	if *setupFlag && !*testFlag {
		dev, err := audio.SelectDevice(catalog)
		if err != nil {
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		} else {
			cfg.Device = dev.Name
		}
	}

	if *apiFlag {
		srv, err := api.Listen(cfg.APIAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: api: %v\n", err)
			return 1
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	if !cfg.Beep || *testFlag {
		beep.Disable()
	} else {
		go beep.Init()
	}

	a := &app{cfg: cfg, audio: actx, store: store, model: model, devices: catalog.Names()}
	pcfg := pipeline.Config{
		ListenTimeout: cfg.ListenTimeout,
		ErrorBackoff:  cfg.ErrorBackoff,
		CloseTimeout:  cfg.CloseTimeout,
		Segment:       cfg.SegmentConfig(),
		Record:        pipeline.DefaultConfig().Record,
	}
	deps := pipeline.Deps{
		Audio:       actx,
		Transcriber: trans,
		Translator:  tl,
		Store:       store,
		Cue:         beep.Cue,
		Alert:       beep.PlayError,
	}

	if *testFlag {
		sink := pipeline.NewViewSink()
		deps.Sink = sink
		a.ctrl = pipeline.New(deps, pcfg)
		return runTestMode(a, fake, sink, os.Stdin, os.Stdout)
	}

	q := pipeline.NewQueue()
	deps.Sink = q
	a.ctrl = pipeline.New(deps, pcfg)

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)

	if *guiFlag {
		err = runGUI(a, q, sigChan)
	} else {
		err = runTUI(a, q, sigChan)
	}
	if err != nil {
		log.Errorf("ui: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printHistory(store *session.Store) int {
	ids, err := store.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(ids) == 0 {
		fmt.Println("No sessions yet.")
		return 0
	}
	for _, id := range ids {
		fmt.Println(filepath.Join(store.Root(), id, session.TranscriptFile))
	}
	return 0
}
