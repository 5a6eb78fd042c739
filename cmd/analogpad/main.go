// analogpad maps analog keyboard key depth onto a virtual gamepad.
//
//	analogpad run        Run the mapping daemon
//	analogpad validate   Check a configuration file
//	analogpad keys       List key names
//	analogpad controls   List gamepad controls
//	analogpad curve      Preview a response curve
//	analogpad crashes    List recovered panic reports
//	analogpad version    Print the version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"analogpad/internal/app"
	"analogpad/internal/config"
	"analogpad/internal/curve"
	"analogpad/internal/gamepad"
	"analogpad/internal/keys"
	"analogpad/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = cmdRun(args)
	case "validate":
		err = cmdValidate(args, os.Stdout)
	case "keys":
		err = cmdKeys(os.Stdout)
	case "controls":
		err = cmdControls(os.Stdout)
	case "curve":
		err = cmdCurve(args, os.Stdout)
	case "crashes":
		err = cmdCrashes(args, os.Stdout)
	case "version":
		fmt.Printf("analogpad %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `analogpad - Analog keyboard to virtual gamepad mapper

USAGE:
    analogpad <command> [options]

COMMANDS:
    run         Run the mapping daemon
    validate    Check a configuration file and list its profiles
    keys        List the key names usable in mappings and hotkeys
    controls    List the gamepad controls usable in mappings
    curve       Preview a response curve
    crashes     List crash reports of recovered panics
    version     Print the version
    help        Show this help message

RUN OPTIONS:
    -config <path>      Configuration file (default: platform config dir)
    -log-level <level>  Override logging.level (debug, info, warn, error)

RUN SIGNALS:
    SIGHUP              Reopen the log file (rotate)

CURVE OPTIONS:
    -points "0,0;0.5,0.8;1,1"  Control points, x,y pairs separated by ';'
    -smooth                    Smooth interpolation between points
    -inner 0.05 -outer 0.95    Dead zones
    -steps 10                  Number of rows

ENVIRONMENT:
    ANALOGPAD_CONFIG, ANALOGPAD_LOG_LEVEL, ANALOGPAD_LOG_FORMAT,
    ANALOGPAD_RATE_HZ, ANALOGPAD_MONITOR_ADDR, ANALOGPAD_SINK,
    ANALOGPAD_ANALOG_LIBRARY`)
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file")
	logLevel := fs.String("log-level", "", "log level override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := config.NewLoader(*configPath, nil)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load %s: %w", loader.Path(), err)
	}
	defer loader.Close()
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	a, err := app.New(app.Options{
		Config:   cfg,
		Logger:   logger,
		Version:  Version,
		CrashDir: app.CrashDir(),
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	if err := a.Watch(ctx, loader); err != nil {
		logger.Warn("configuration hot reload disabled", "error", err)
	}
	logger.Info("analogpad running", "version", Version, "config", loader.Path())

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-hup:
			if err := logger.Rotate(); err != nil {
				logger.Warn("log rotation failed", "error", err)
			}
		}
	}
}

func cmdCrashes(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("crashes", flag.ContinueOnError)
	dir := fs.String("dir", app.CrashDir(), "crash report directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	h := logging.NewCrashHandler(logging.CrashHandlerConfig{CrashDir: *dir})
	reports, err := h.CrashReports()
	if err != nil {
		return fmt.Errorf("read crash reports: %w", err)
	}
	if len(reports) == 0 {
		fmt.Fprintf(out, "No crash reports in %s\n", *dir)
		return nil
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.Before(reports[j].Timestamp)
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOMPONENT\tVERSION\tPANIC")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Component, r.Version, r.PanicValue)
	}
	return tw.Flush()
}

func cmdValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "", "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintf(out, "%s: %d problem(s)\n", path, len(verrs))
			for _, v := range verrs {
				fmt.Fprintf(out, "  %s: %s\n", v.Field, v.Message)
			}
		}
		return fmt.Errorf("%s is invalid: %w", path, err)
	}

	profiles := cfg.Profiles
	if len(profiles) == 0 {
		fmt.Fprintf(out, "%s: valid (no profiles, the built-in default is used)\n", path)
		return nil
	}
	fmt.Fprintf(out, "%s: valid\n", path)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tSUB-PROFILE\tHOTKEY\tMAPPINGS")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t\t%s\t\n", p.Name, hotkeyLabel(p.Hotkey))
		for _, sp := range p.SubProfiles {
			fmt.Fprintf(w, "\t%s\t%s\t%d\n", sp.Name, hotkeyLabel(sp.Hotkey), len(sp.Mappings))
		}
	}
	return w.Flush()
}

func hotkeyLabel(h keys.Hotkey) string {
	if h.IsZero() {
		return "-"
	}
	return h.String()
}

func cmdKeys(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCODE")
	for _, k := range keys.All() {
		fmt.Fprintf(w, "%s\t0x%02X\n", k.Name, k.Code)
	}
	return w.Flush()
}

func cmdControls(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONTROL\tKIND")
	for _, c := range gamepad.Controls() {
		kind := "analog"
		if c.IsButton() {
			kind = "button"
		}
		fmt.Fprintf(w, "%s\t%s\n", c, kind)
	}
	return w.Flush()
}

func cmdCurve(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("curve", flag.ContinueOnError)
	fs.SetOutput(out)
	points := fs.String("points", "", `control points, e.g. "0,0;0.5,0.8;1,1" (empty = linear)`)
	smooth := fs.Bool("smooth", false, "smooth interpolation between points")
	inner := fs.Float64("inner", 0, "inner dead zone")
	outer := fs.Float64("outer", 1, "outer dead zone")
	steps := fs.Int("steps", 10, "number of rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return fmt.Errorf("steps must be positive")
	}

	c := curve.Curve{Kind: curve.Linear}
	if *points != "" {
		pts, err := parsePoints(*points)
		if err != nil {
			return err
		}
		c = curve.Curve{Kind: curve.Custom, Points: pts, Smooth: *smooth}
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if *inner < 0 || *outer > 1 || *inner >= *outer {
		return fmt.Errorf("dead zones must satisfy 0 <= inner < outer <= 1")
	}

	eval := curve.New(c, *inner, *outer)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "INPUT\tOUTPUT\t")
	for i := 0; i <= *steps; i++ {
		x := float64(i) / float64(*steps)
		fmt.Fprintf(w, "%.3f\t%.3f\t\n", x, eval.Apply(x))
	}
	return w.Flush()
}

// parsePoints reads "x,y;x,y;..." into curve points.
func parsePoints(s string) ([]curve.Point, error) {
	var pts []curve.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xs, ys, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("point %q: want x,y", pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		pts = append(pts, curve.Point{X: x, Y: y})
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("no points")
	}
	return pts, nil
}
