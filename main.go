package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pelageech/pagesrv/config"
	"github.com/pelageech/pagesrv/fileserver"
	"github.com/pelageech/pagesrv/metrics"
	"github.com/pelageech/pagesrv/notfound"
	"github.com/pelageech/pagesrv/server"
	"github.com/pelageech/pagesrv/timer"
)

const metricsObserveFrequency = 5 * time.Second

// options are the parsed command line. Flags given explicitly win over
// the config file, which wins over the defaults.
type options struct {
	configPath string
	flags      config.ServerConfig
	set        map[string]bool
}

func parseOptions(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("pagesrv", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintln(output, "Serve a directory locally with GitHub Pages-like 404 handling.")
		fmt.Fprintln(output, "\nUsage: pagesrv [flags]")
		fs.PrintDefaults()
	}

	o := &options{set: make(map[string]bool)}
	d := config.Default()
	fs.StringVar(&o.flags.Host, "host", d.Host, "host to bind to")
	fs.IntVar(&o.flags.Port, "port", d.Port, "port to bind to")
	fs.StringVar(&o.flags.Dir, "dir", d.Dir, "directory to serve")
	fs.StringVar(&o.configPath, "config", "", "JSON, TOML or YAML config file")
	fs.IntVar(&o.flags.MaxConns, "max-conns", d.MaxConns, "maximum simultaneous connections, 0 for no limit")
	fs.StringVar(&o.flags.MetricsAddr, "metrics", d.MetricsAddr, "host:port for the Prometheus endpoint, empty to disable")
	fs.BoolVar(&o.flags.Verbose, "verbose", d.Verbose, "log debug messages")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		o.set[f.Name] = true
	})
	return o, nil
}

// load builds the configuration. It is called at startup and again on
// SIGHUP.
func (o *options) load() (config.ServerConfig, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.ReadFile(o.configPath, cfg); err != nil {
			return cfg, err
		}
	}

	if o.set["host"] {
		cfg.Host = o.flags.Host
	}
	if o.set["port"] {
		cfg.Port = o.flags.Port
	}
	if o.set["dir"] {
		cfg.Dir = o.flags.Dir
	}
	if o.set["max-conns"] {
		cfg.MaxConns = o.flags.MaxConns
	}
	if o.set["metrics"] {
		cfg.MetricsAddr = o.flags.MetricsAddr
	}
	if o.set["verbose"] {
		cfg.Verbose = o.flags.Verbose
	}

	return cfg, cfg.Validate()
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	logger.SetPrefix("pagesrv")
	return logger
}

func main() {
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, logger)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatal("Exiting", "err", err)
	}
}

// run serves until ctx is done. The banner goes to stdout once the site
// address is bound.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, logger *log.Logger) error {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := opts.load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	root, err := cfg.AbsDir()
	if err != nil {
		return err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		logger.Warn("Root is not a readable directory, every request will be a 404", "root", root)
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		if m, err = startMetrics(ctx, cfg.MetricsAddr, logger); err != nil {
			return err
		}
	}

	pageOpts := []notfound.Option{}
	if m != nil {
		pageOpts = append(pageOpts, notfound.WithServed(m.FallbackServed))
	}
	page := notfound.New(logger, pageOpts...)
	files := fileserver.New(root, logger, fileserver.WithNotFound(page.Serve))

	var handler http.Handler = timer.Track(files, timer.LogSaver(logger, cfg.Verbose))
	if m != nil {
		handler = m.Middleware(handler)
	}

	srv := server.New(cfg, handler, logger)
	ln, err := srv.Listen()
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	if opts.configPath != "" {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go reloadOnHangup(ctx, hup, opts, cfg, files, logger)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = srv.Close()
		case <-done:
		}
	}()

	fmt.Fprintf(stdout, "Serving on %s (root: %s)\n", srv.URL(), root)
	return srv.Serve(ln)
}

// startMetrics binds the metrics address before the site is served, so a
// bad address stops the process at startup like a bad site address does.
func startMetrics(ctx context.Context, addr string, logger *log.Logger) (*metrics.Metrics, error) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("start metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: config.DefaultReadHeaderTimeout}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics endpoint stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go m.Observe(ctx, metricsObserveFrequency)

	logger.Info("Metrics available", "url", "http://"+ln.Addr().String()+"/metrics")
	return m, nil
}

// reloadOnHangup re-reads the config file on every value from hup and
// points the file server at the new directory. Address changes need a
// restart.
func reloadOnHangup(ctx context.Context, hup <-chan os.Signal, opts *options, current config.ServerConfig, files *fileserver.Handler, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		cfg, err := opts.load()
		if err != nil {
			logger.Error("Failed to reload configuration", "err", err)
			continue
		}
		if cfg.Host != current.Host || cfg.Port != current.Port {
			logger.Warn("Host and port changes take effect after a restart")
		}

		root, err := cfg.AbsDir()
		if err != nil {
			logger.Error("Failed to reload configuration", "err", err)
			continue
		}
		if root != files.Root() {
			files.SetRoot(root)
			logger.Info("Serving a new root", "root", root)
		}
	}
}
