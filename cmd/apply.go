/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tschaefer/filterctl/internal/config"
	"github.com/tschaefer/filterctl/internal/engine"
	"github.com/tschaefer/filterctl/internal/flows"
	"github.com/tschaefer/filterctl/internal/geoip"
	"github.com/tschaefer/filterctl/internal/logger"
	"github.com/tschaefer/filterctl/internal/metrics"
	"github.com/tschaefer/filterctl/internal/profiler"
	"github.com/tschaefer/filterctl/internal/record"
	"github.com/tschaefer/filterctl/internal/rule"
	"github.com/tschaefer/filterctl/internal/service"
	"github.com/tschaefer/filterctl/internal/sink"
)

type Options struct {
	backend        string
	resolveAppID   bool
	logLevel       string
	logFormat      string
	rules          []string
	geoipDatabase  string
	metricsAddress string
	terminate      bool
	profiler       string
	sink           sink.Config
}

var applyRules []string

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Install the configured rules until interrupted",
	Long: `Open a session on the selected backend, install the configured rules and
hold them until SIGINT or SIGTERM. Every installed filter is removed on exit.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		return loadOptions(cmd).validate()
	},
	Run: func(cmd *cobra.Command, args []string) {
		options := loadOptions(cmd)

		l, err := logger.NewLogger(options.logLevel, options.logFormat)
		if err != nil {
			cobra.CheckErr(fmt.Sprintf("Failed to create logger: %v", err))
		}

		rules, err := rule.ParseAll(options.rules)
		if err != nil {
			cobra.CheckErr(fmt.Sprintf("Failed to parse rules: %v", err))
		}
		if len(rules) == 0 {
			cobra.CheckErr("No rules configured.")
		}

		b, err := newBackend(options.backend, options.resolveAppID)
		cobra.CheckErr(err)

		if options.profiler != "" {
			p := profiler.NewProfiler(options.profiler, map[string]string{"backend": b.Name()})
			if err := p.Start(); err != nil {
				cobra.CheckErr(fmt.Sprintf("Failed to start profiler: %v", err))
			}
			defer func() {
				_ = p.Stop()
			}()
		}

		m := metrics.New()
		opts := []engine.Option{
			engine.WithLogger(l.Logger),
			engine.WithObserver(m),
		}

		var rec *record.Recorder
		if options.sink.Enabled() {
			s, err := sink.NewSink(&options.sink)
			if err != nil {
				cobra.CheckErr(fmt.Sprintf("Failed to initialize sink: %v", err))
			}

			var g *geoip.GeoIP
			if options.geoipDatabase != "" {
				g, err = geoip.Open(options.geoipDatabase)
				if err != nil {
					cobra.CheckErr(fmt.Sprintf("Failed to open geoip database: %v", err))
				}
				defer func() {
					_ = g.Close()
				}()
			}

			rec = record.New(s.Logger, g)
			opts = append(opts, engine.WithObserver(rec))
		}

		var watchers []service.Watcher
		if options.terminate {
			t, err := flows.New(l.Logger)
			switch {
			case errors.Is(err, flows.ErrUnavailable):
				l.Logger.Warn("Flow termination unavailable.", "error", err)
			case err != nil:
				cobra.CheckErr(fmt.Sprintf("Failed to set up flow termination: %v", err))
			default:
				defer func() {
					_ = t.Close()
				}()
				opts = append(opts, engine.WithObserver(t))
				watchers = append(watchers, t)
			}
		}

		svc, err := service.NewService(l, engine.New(b, opts...), rules)
		cobra.CheckErr(err)
		svc.Recorder = rec
		svc.Metrics = m
		svc.MetricsAddress = options.metricsAddress
		svc.Watchers = watchers

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if tranquil := svc.Run(ctx); !tranquil {
			os.Exit(1)
		}
	},
}

func loadOptions(cmd *cobra.Command) Options {
	rules := config.Rules()
	if cmd.Flags().Changed("rule") {
		rules = applyRules
	}

	return Options{
		backend:        viper.GetString("backend"),
		resolveAppID:   viper.GetBool("wfp.appid.resolve"),
		logLevel:       viper.GetString("log.level"),
		logFormat:      viper.GetString("log.format"),
		rules:          rules,
		geoipDatabase:  viper.GetString("geoip.database"),
		metricsAddress: viper.GetString("metrics.address"),
		terminate:      viper.GetBool("conntrack.terminate"),
		profiler:       viper.GetString("profiler.address"),
		sink: sink.Config{
			Journal: sink.Journal{
				Enable: viper.GetBool("sink.journal.enable"),
			},
			Syslog: sink.Syslog{
				Enable:  viper.GetBool("sink.syslog.enable"),
				Address: viper.GetString("sink.syslog.address"),
			},
			Loki: sink.Loki{
				Enable:  viper.GetBool("sink.loki.enable"),
				Address: viper.GetString("sink.loki.address"),
				Labels:  viper.GetStringSlice("sink.loki.labels"),
			},
			Stream: sink.Stream{
				Enable: viper.GetBool("sink.stream.enable"),
				Writer: viper.GetString("sink.stream.writer"),
				Format: viper.GetString("sink.stream.format"),
			},
		},
	}
}

func (o Options) validate() error {
	checks := []error{
		validateStringFlag("backend", o.backend, validBackends),
		validateStringFlag("log.level", o.logLevel, logger.Levels),
		validateStringFlag("log.format", o.logFormat, logger.Formats),
		validateStringFlag("metrics.address", o.metricsAddress, nil),
	}
	if o.profiler != "" {
		checks = append(checks, validateStringFlag("profiler.address", o.profiler, nil))
	}
	if o.sink.Syslog.Enable {
		checks = append(checks, validateStringFlag("sink.syslog.address", o.sink.Syslog.Address, nil))
	}
	if o.sink.Loki.Enable {
		checks = append(checks,
			validateStringFlag("sink.loki.address", o.sink.Loki.Address, nil),
			validateStringSliceFlag("sink.loki.labels", o.sink.Loki.Labels, nil),
		)
	}
	if o.sink.Stream.Enable {
		checks = append(checks,
			validateStringFlag("sink.stream.writer", o.sink.Stream.Writer, sink.StreamWriters),
			validateStringFlag("sink.stream.format", o.sink.Stream.Format, sink.StreamFormats),
		)
	}
	return errors.Join(checks...)
}

func completeValues(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

func init() {
	applyCmd.CompletionOptions.SetDefaultShellCompDirective(cobra.ShellCompDirectiveNoFileComp)

	flags := applyCmd.Flags()

	flags.StringArrayVar(&applyRules, "rule", nil, "Rule in text form (repeatable, overrides configured rules)")

	flags.String("backend", "auto", fmt.Sprintf("Filter backend (%s)", strings.Join(validBackends, ", ")))
	_ = applyCmd.RegisterFlagCompletionFunc("backend", completeValues(validBackends))
	flags.Bool("wfp.appid.resolve", false, "Match applications by their resolved NT device path (wfp only)")

	flags.String("log.level", "info", fmt.Sprintf("Log level (%s)", strings.Join(logger.Levels, ", ")))
	_ = applyCmd.RegisterFlagCompletionFunc("log.level", completeValues(logger.Levels))
	flags.String("log.format", "json", fmt.Sprintf("Log format (%s)", strings.Join(logger.Formats, ", ")))
	_ = applyCmd.RegisterFlagCompletionFunc("log.format", completeValues(logger.Formats))

	flags.String("geoip.database", "", "Path to GeoIP database")
	_ = applyCmd.RegisterFlagCompletionFunc("geoip.database", cobra.FixedCompletions(nil, cobra.ShellCompDirectiveDefault))

	flags.String("metrics.address", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9469")
	flags.Bool("conntrack.terminate", false, "Terminate tracked flows matched by installed block filters (linux only)")
	flags.String("profiler.address", "", "Push continuous profiles to this pyroscope server")

	flags.Bool("sink.journal.enable", false, "Enable journald sink")
	flags.Bool("sink.syslog.enable", false, "Enable syslog sink")
	flags.String("sink.syslog.address", "udp://localhost:514", "Syslog address")

	flags.Bool("sink.loki.enable", false, "Enable Loki sink")
	flags.String("sink.loki.address", "http://localhost:3100", "Loki address")
	flags.StringSlice("sink.loki.labels", nil, "Additional labels for Loki sink in key=value format")

	flags.Bool("sink.stream.enable", false, "Enable stream sink")
	flags.String("sink.stream.writer", "stdout", fmt.Sprintf("Stream writer (%s)", strings.Join(sink.StreamWriters, ", ")))
	_ = applyCmd.RegisterFlagCompletionFunc("sink.stream.writer", completeValues(sink.StreamWriters))
	flags.String("sink.stream.format", "json", fmt.Sprintf("Stream format (%s)", strings.Join(sink.StreamFormats, ", ")))
	_ = applyCmd.RegisterFlagCompletionFunc("sink.stream.format", completeValues(sink.StreamFormats))
}
