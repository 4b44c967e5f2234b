package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/binderkit/atom"
	"github.com/wippyai/binderkit/binder"
	"github.com/wippyai/binderkit/component"
	"github.com/wippyai/binderkit/config"
	"github.com/wippyai/binderkit/metrics"
	"github.com/wippyai/binderkit/transport/loopback"
	"github.com/wippyai/binderkit/transport/stream"
)

// options are shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	trackLeaks bool

	cfg     config.Config
	log     *zap.Logger
	tracker *atom.Tracker
	rec     *metrics.Recorder
	reg     *prometheus.Registry
}

// NewRootCommand builds the binderctl command tree.
func NewRootCommand(ctx context.Context) *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:           "binderctl",
		Short:         "binderctl inspects binderkit values, objects and transports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.Complete()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.log != nil {
				_ = o.log.Sync()
			}
		},
	}
	cmd.SetContext(ctx)
	o.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newDemoCommand(o),
		newValueCommand(o),
		newLeaksCommand(o),
		newTopCommand(o),
		newWasmCommand(o),
	)
	return cmd
}

// AddFlags registers the global flags.
func (o *options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "path to a YAML or TOML configuration file")
	fs.StringVar(&o.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	fs.BoolVar(&o.trackLeaks, "track-leaks", false, "record live reference counted objects")
}

// Complete loads the configuration and builds the logger, tracker and
// metrics recorder it describes.
func (o *options) Complete() error {
	var err error
	if o.configPath != "" {
		o.cfg, err = config.Load(o.configPath)
	} else {
		o.cfg, err = config.FromEnv()
	}
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		o.cfg.Logging.Level = o.logLevel
	}
	if o.trackLeaks {
		o.cfg.Tracking.Enabled = true
	}
	if err := o.cfg.Validate(); err != nil {
		return err
	}

	o.log, err = o.cfg.Logger()
	if err != nil {
		return err
	}
	binder.SetLogger(o.log.Named("binder"))
	loopback.SetLogger(o.log.Named("loopback"))
	stream.SetLogger(o.log.Named("stream"))
	component.SetLogger(o.log.Named("component"))

	o.tracker = o.cfg.Tracker()
	mopts := []metrics.Option{metrics.WithCodes(codeAdd, codeEcho, codeTicket, codeNumber)}
	if o.tracker != nil {
		mopts = append(mopts, metrics.WithTracker(o.tracker))
	}
	o.rec = metrics.New(mopts...)
	o.reg = prometheus.NewRegistry()
	o.reg.MustRegister(collectors.NewGoCollector())
	return o.rec.Register(o.reg)
}

// processOptions returns the options every Process created by a command
// shares.
func (o *options) processOptions(name string) []binder.Option {
	if o.cfg.Process.Name != "" {
		name = o.cfg.Process.Name + "-" + name
	}
	opts := []binder.Option{
		binder.WithName(name),
		binder.WithLogger(o.log.Named(name)),
		binder.WithRecorder(o.rec),
	}
	if o.tracker != nil {
		opts = append(opts, binder.WithProcessTracker(o.tracker))
	}
	return opts
}

// localOptions returns the options for Locals created by a command.
func (o *options) localOptions() []binder.LocalOption {
	var opts []binder.LocalOption
	if o.cfg.Process.SerialDispatch {
		opts = append(opts, binder.WithSerialDispatch())
	}
	if o.tracker != nil {
		opts = append(opts, binder.WithTracker(o.tracker))
	}
	return opts
}

// callContext bounds one call by the configured timeout.
func (o *options) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Transport.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.Transport.CallTimeout)
}

// serveMetrics exposes the registry over HTTP until ctx is done. It does
// nothing unless metrics are enabled.
func (o *options) serveMetrics(ctx context.Context) {
	if !o.cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(o.cfg.Metrics.Path, promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{Registry: o.reg}))
	srv := &http.Server{
		Addr:              o.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		o.log.Info("serving metrics", zap.String("address", srv.Addr), zap.String("path", o.cfg.Metrics.Path))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			o.log.Error("metrics server", zap.Error(err))
		}
	}()
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
}
