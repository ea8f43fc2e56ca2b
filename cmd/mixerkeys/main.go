package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("mixerkeys v%s\n", version)
	fmt.Println("Hotkey daemon for mixer service control")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  mixerkeys [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that binds keyboard shortcuts to mixer service controls over")
	fmt.Println("  WebSocket. Volume up/down, switch toggling and device cycling work")
	fmt.Println("  from any console, with a short confirmation tone on every change.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML configuration file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -mixer-ws-url string")
	fmt.Printf("        Mixer service websocket URL (default %q)\n", defaultMixerURL)
	fmt.Println()
	fmt.Println("  -mixer-ws-timeout-ms int")
	fmt.Printf("        Timeout for websocket writes in ms (default %d)\n", defaultReadTimeoutMS)
	fmt.Println()
	fmt.Println("  -input string")
	fmt.Println("        Input event device to monitor; repeat for multiple devices")
	fmt.Println("        (default: autodetect keyboards under /dev/input)")
	fmt.Println()
	fmt.Println("  -no-exclusive")
	fmt.Println("        Do not grab bound keys exclusively; other clients still see them")
	fmt.Println()
	fmt.Println("  -b string")
	fmt.Println("        Add a key binding, e.g. \"Control+Alt+m:output.mute!\"; repeatable.")
	fmt.Println("        A binding for an already-bound action replaces the old key.")
	fmt.Println("        Legacy action names inc_level, dec_level, cycle_dev are accepted.")
	fmt.Println()
	fmt.Println("  -silent")
	fmt.Println("        Disable the confirmation tone")
	fmt.Println()
	fmt.Println("  -bell")
	fmt.Println("        Also ring when another client changes a control")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", defaultIPCSocket)
	fmt.Println()
	fmt.Println("  -background")
	fmt.Println("        Detach from the terminal and run in the background")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("DEFAULT BINDINGS:")
	fmt.Println("  Control+Alt+plus    output.level+   (volume up)")
	fmt.Println("  Control+Alt+minus   output.level-   (volume down)")
	fmt.Println("  Control+Alt+0       server.device!  (cycle playback device)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with default bindings")
	fmt.Println("  mixerkeys")
	fmt.Println()
	fmt.Println("  # Bind mute and move volume up to a different key")
	fmt.Println("  mixerkeys -b Control+Alt+m:output.mute! -b Control+Alt+equal:output.level+")
	fmt.Println()
	fmt.Println("  # Remote mixer, no tone")
	fmt.Println("  mixerkeys -mixer-ws-url ws://192.168.1.50:7770 -silent")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to input devices (run as root or join the 'input' group)")
	fmt.Println("  - The daemon keeps running while the mixer is down and reconnects on demand")
	fmt.Println()
}

// stringList collects repeatable string flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		inputDevices stringList
		bindingSpecs stringList
	)
	var (
		configPath     = flag.String("config", "", "YAML configuration file")
		mixerWsURL     = flag.String("mixer-ws-url", defaultMixerURL, "Mixer service websocket URL")
		mixerTimeoutMS = flag.Int("mixer-ws-timeout-ms", defaultReadTimeoutMS, "Timeout in milliseconds for websocket writes")
		noExclusive    = flag.Bool("no-exclusive", false, "Do not grab bound keys exclusively")
		silent         = flag.Bool("silent", false, "Disable the confirmation tone")
		bell           = flag.Bool("bell", false, "Also ring when another client changes a control")
		ipcSocketPath  = flag.String("ipc-socket", defaultIPCSocket, "Unix domain socket path for IPC")
		background     = flag.Bool("background", false, "Detach from the terminal")
		logLevelStr    = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion    = flag.Bool("version", false, "Print version and exit")
		showHelp       = flag.Bool("help", false, "Print help message")
	)
	flag.Var(&inputDevices, "input", "Input event device to monitor (repeatable)")
	flag.Var(&bindingSpecs, "b", "Add a key binding (repeatable)")

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	if *background {
		if err := daemonize(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	// Config file first, then flag overrides on top. Only flags the user
	// actually set override file values.
	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var overrides FlagOverrides
	if set["mixer-ws-url"] {
		overrides.MixerWsURL = mixerWsURL
	}
	if set["mixer-ws-timeout-ms"] {
		overrides.MixerTimeoutMS = mixerTimeoutMS
	}
	if set["input"] {
		devices := []string(inputDevices)
		overrides.InputDevices = &devices
	}
	if set["no-exclusive"] {
		exclusive := !*noExclusive
		overrides.InputExclusive = &exclusive
	}
	if set["b"] {
		specs := []string(bindingSpecs)
		overrides.Bindings = &specs
	}
	if set["silent"] {
		overrides.FeedbackSilent = silent
	}
	if set["bell"] {
		overrides.FeedbackBell = bell
	}
	if set["ipc-socket"] {
		overrides.IPCSocketPath = ipcSocketPath
	}
	if set["log-level"] {
		overrides.LogLevel = logLevelStr
	}
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	// Binding table: defaults first, then config/flag bindings on top so
	// rebinding an action replaces the stock key.
	table := NewBindingTable()
	registerDefaultBindings(table)
	for _, spec := range cfg.Bindings {
		b, err := ParseBinding(spec)
		if err != nil {
			logger.Error("bad binding", "error", err)
			os.Exit(1)
		}
		table.Register(b)
	}

	devices := cfg.Input.Devices
	if len(devices) == 0 {
		devices, err = discoverKeyboards()
		if err != nil {
			logger.Error("input device discovery failed", "error", err)
			os.Exit(1)
		}
	}

	keys, err := newEvdevSource(devices, cfg.Input.Exclusive, logger)
	if err != nil {
		logger.Error("input setup failed", "error", err)
		os.Exit(1)
	}
	defer keys.Close()

	var feedback Feedback = silentFeedback{}
	if !cfg.Feedback.Silent {
		feedback = NewBeeper(logger, cfg.Feedback.ToneHz, cfg.Feedback.ToneDurationMS)
	}

	mirror := NewMirror(logger)
	dial := func() (MixerConn, error) {
		c, err := DialMixer(cfg.Mixer.WsURL, logger, cfg.Mixer.TimeoutMS)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	disp := NewDispatcher(logger, keys, table, mirror, feedback, cfg.Feedback.Bell, dial)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return disp.Run(runCtx)
	})
	g.Go(func() error {
		return runIPCServer(runCtx, cfg.IPC.SocketPath, disp.Requests(), logger)
	})

	bindings := make([]string, 0, len(table.All()))
	for _, b := range table.All() {
		bindings = append(bindings, b.String())
	}
	logger.Info("listening",
		"devices", strings.Join(devices, ","),
		"mixer_ws", cfg.Mixer.WsURL,
		"ipc", cfg.IPC.SocketPath,
		"bindings", strings.Join(bindings, " "))

	if err := g.Wait(); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shut down")
}
