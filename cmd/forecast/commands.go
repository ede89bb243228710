package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanqian/solar-forecast/internal/domain/forecast"
	"github.com/yanqian/solar-forecast/internal/domain/quota"
	"github.com/yanqian/solar-forecast/pkg/util"
)

// errForecastFailed marks a total forecast failure whose result was already printed.
var errForecastFailed = errors.New("forecast failed")

type runOptions struct {
	start      string
	end        string
	lat        float64
	lon        float64
	noWeather  bool
	forceFresh bool
}

func newRootCommand(out io.Writer) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "forecast",
		Short:         "Hourly solar generation forecasts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_PATH", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")

	root.AddCommand(
		newRunCommand(out),
		newStatsCommand(out),
		newModelCommand(out),
		newTokenCommand(out),
		newSweepCommand(out),
		newUploadModelCommand(out),
	)
	return root
}

func newRunCommand(out io.Writer) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute a forecast and print it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(false)
			if err != nil {
				res := forecast.Failure(err)
				if werr := writeJSON(out, res); werr != nil {
					return werr
				}
				return errForecastFailed
			}
			defer env.close()

			start, end := defaultDates(opts.start, opts.end, time.Now().In(env.loc))
			req := forecast.Request{
				StartDate:  start,
				EndDate:    end,
				ForceFresh: opts.forceFresh,
			}
			if cmd.Flags().Changed("lat") {
				req.Latitude = &opts.lat
			}
			if cmd.Flags().Changed("lon") {
				req.Longitude = &opts.lon
			}
			if opts.noWeather {
				useWeather := false
				req.UseWeather = &useWeather
			}

			res := env.forecast.Forecast(cmd.Context(), req)
			if err := writeJSON(out, res); err != nil {
				return err
			}
			if !res.Success {
				return errForecastFailed
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.start, "start", "", "first day to forecast (YYYY-MM-DD), defaults to today")
	flags.StringVar(&opts.end, "end", "", "last day to forecast (YYYY-MM-DD), defaults to start")
	flags.Float64Var(&opts.lat, "lat", forecast.DefaultLatitude, "site latitude")
	flags.Float64Var(&opts.lon, "lon", forecast.DefaultLongitude, "site longitude")
	flags.BoolVar(&opts.noWeather, "no-weather", false, "skip weather and use seasonal defaults")
	flags.BoolVar(&opts.forceFresh, "force-fresh", false, "bypass the result cache")
	return cmd
}

func newStatsCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the weather API call budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(true)
			if err != nil {
				return err
			}
			defer env.close()

			history := env.limiter.History()
			return writeJSON(out, struct {
				Stats       quota.Stats        `json:"api_stats"`
				HistorySize int                `json:"history_size"`
				Recent      []quota.CallRecord `json:"recent_calls"`
			}{
				Stats:       env.limiter.Stats(cmd.Context()),
				HistorySize: len(history),
				Recent:      lastCalls(history, 10),
			})
		},
	}
}

func newModelCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "model",
		Short: "Print information about the loaded model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadEnv(false)
			if err != nil {
				return err
			}
			defer env.close()

			info, ok := env.forecast.ModelInfo()
			if !ok {
				return errors.New("model not loaded")
			}
			return writeJSON(out, info)
		},
	}
}

func newTokenCommand(out io.Writer) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			svc := provideAccess(cfg, logger)
			if !svc.Enabled() {
				return errors.New("ACCESS_TOKEN_SECRET is not configured")
			}
			token, err := svc.Issue(cmd.Context(), subject, ttl)
			if err != nil {
				return err
			}
			return writeJSON(out, token)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "name of the token holder")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to the configured TTL")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newSweepCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict cache entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			janitor, cleanup, err := provideJanitor(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			removed, err := janitor.SweepOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep cache: %w", err)
			}
			return writeJSON(out, map[string]any{"removed": removed, "enabled": janitor.Enabled()})
		},
	}
}

func newUploadModelCommand(out io.Writer) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "upload-model",
		Short: "Validate a model artifact and upload it to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Model.Object.Enabled {
				return errors.New("object storage is not enabled (MODEL_OBJECT_ENABLED)")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read artifact: %w", err)
			}
			loader, err := provideObjectLoader(cfg, logger)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			if err := loader.Upload(ctx, data); err != nil {
				return err
			}
			return writeJSON(out, map[string]any{
				"bucket": cfg.Model.Object.Bucket,
				"key":    cfg.Model.Object.Key,
				"bytes":  len(data),
			})
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "path to the model artifact JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func defaultDates(start, end string, now time.Time) (string, string) {
	if start == "" {
		start = util.FormatDate(now)
	}
	if end == "" {
		end = start
	}
	return start, end
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func lastCalls(records []quota.CallRecord, n int) []quota.CallRecord {
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
