package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb/maptile"
	"github.com/spf13/cobra"

	"github.com/i474232898/karwanua/internal/dashboard"
	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/observability"
)

// Options are the flags shared by every subcommand.
// Env vars: KARWANUA_URL, LOG_LEVEL, KARWANUA_PREFERENCES
type Options struct {
	GatewayURL  string
	LogLevel    string
	Preferences string
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	opts := &Options{}
	root := &cobra.Command{
		Use:           "karwanua",
		Short:         "Climate dashboard client for the Karwanua gateway",
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.GatewayURL, "gateway", envDefault("KARWANUA_URL", "http://localhost:8080"), "Gateway base URL")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", envDefault("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.Preferences, "preferences", os.Getenv("KARWANUA_PREFERENCES"), "Preferences file (default: user config dir)")

	root.AddCommand(snapshotCmd(opts), watchCmd(opts), modelCmd(opts), tileCmd(opts))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *Options) logger() *slog.Logger {
	return observability.NewLogger(o.LogLevel, "text")
}

func (o *Options) modelPreference(log *slog.Logger) (*dashboard.ModelPreference, error) {
	store, err := dashboard.NewFilePreferenceStore(o.Preferences)
	if err != nil {
		return nil, err
	}
	return dashboard.NewModelPreference(store, environment.DefaultModel, log), nil
}

// locationFlags pick the position source: fixed coordinates when both are
// given, IP geolocation otherwise.
type locationFlags struct {
	lat, lon float64
	name     string
	timeout  time.Duration
}

func (f *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "Latitude (skips detection when --lon is also set)")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "Longitude")
	cmd.Flags().StringVar(&f.name, "name", "", "Display name for --lat/--lon")
	cmd.Flags().DurationVar(&f.timeout, "detect-timeout", dashboard.DefaultDetectTimeout, "Location detection timeout")
}

func (f *locationFlags) resolve(ctx context.Context, cmd *cobra.Command, client *dashboard.Client, bus *dashboard.Bus, log *slog.Logger) (*dashboard.Resolver, error) {
	if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
		if f.name != "" {
			r := dashboard.NewResolver(nil, client, bus, log, f.timeout)
			return r, r.SetLocation(environment.Location{Latitude: f.lat, Longitude: f.lon, DisplayName: f.name})
		}
		// Named by reverse geocoding through the gateway.
		src := dashboard.StaticPositionSource{Position: dashboard.Position{Latitude: f.lat, Longitude: f.lon}}
		r := dashboard.NewResolver(src, client, bus, log, f.timeout)
		return r, r.DetectLocation(ctx)
	}

	r := dashboard.NewResolver(dashboard.NewIPPositionSource("", nil), client, bus, log, f.timeout)
	return r, r.DetectLocation(ctx)
}

type snapshotOutput struct {
	Location    *environment.Location                           `json:"location"`
	Date        string                                          `json:"date,omitempty"`
	AirQuality  dashboard.Reading[environment.AirQualityReport] `json:"airQuality"`
	NDVI        dashboard.Reading[environment.NDVIReport]       `json:"ndvi"`
	Temperature dashboard.Reading[environment.TemperaturePoint] `json:"temperature"`
	Narration   *dashboard.Narration                            `json:"narration,omitempty"`
}

func snapshotCmd(opts *Options) *cobra.Command {
	var (
		loc     locationFlags
		date    string
		region  string
		narrate bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch air quality, NDVI and temperature anomaly once and print them as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := opts.logger()
			client := dashboard.NewClient(opts.GatewayURL, nil, log)

			if _, err := environment.ParseDate(date); err != nil {
				return err
			}

			resolver, err := loc.resolve(ctx, cmd, client, nil, log)
			if err != nil {
				return fmt.Errorf("locate: %w", err)
			}
			state := resolver.State()

			syncer := dashboard.NewSynchronizer(client, false, log)
			defer syncer.Close()
			syncer.SetLocation(state.Location)
			syncer.SetDate(date)

			temperature := dashboard.NewTemperatureFetcher(client, region, log)

			// Per-kind failures are reported in the output, not as a command error.
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = temperature.Fetch(ctx)
			}()
			_ = syncer.Refetch(ctx)
			<-done

			out := snapshotOutput{
				Location:    state.Location,
				Date:        date,
				AirQuality:  syncer.AirQuality(),
				NDVI:        syncer.NDVI(),
				Temperature: temperature.Snapshot(),
			}

			if narrate {
				pref, err := opts.modelPreference(log)
				if err != nil {
					return err
				}
				n, err := dashboard.NewNarrator(client, pref, log).Narrate(ctx, dashboard.Readings{
					AirQuality:  out.AirQuality,
					NDVI:        out.NDVI,
					Temperature: out.Temperature,
					Location:    state.Location,
					Region:      region,
				})
				if err != nil {
					return fmt.Errorf("narrate: %w", err)
				}
				out.Narration = &n
			}

			return printJSON(cmd, out)
		},
	}
	loc.register(cmd)
	cmd.Flags().StringVar(&date, "date", "", "Reading date YYYY-MM-DD (default: latest)")
	cmd.Flags().StringVar(&region, "region", environment.DefaultRegion, "Temperature anomaly region")
	cmd.Flags().BoolVar(&narrate, "narrate", false, "Also request AI insights and recommendations")
	return cmd
}

func watchCmd(opts *Options) *cobra.Command {
	var (
		loc      locationFlags
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep readings in sync with the detected location and print every change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := opts.logger()
			client := dashboard.NewClient(opts.GatewayURL, nil, log)
			bus := dashboard.NewBus(log)

			syncer := dashboard.NewSynchronizer(client, true, log)
			defer syncer.Close()
			unfollow := syncer.Follow(bus)
			defer unfollow()

			layers := dashboard.NewLayerControl(bus, log)
			defer layers.Close()

			if _, err := loc.resolve(ctx, cmd, client, bus, log); err != nil {
				return fmt.Errorf("locate: %w", err)
			}
			if err := layers.SetSelectedDate(layers.State().SelectedDate); err != nil {
				return err
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-syncer.Updates():
				case <-ticker.C:
					if err := syncer.Refetch(ctx); err != nil {
						log.Warn("refetch failed", "error", err)
					}
				}
				if err := printJSON(cmd, snapshotOutput{
					AirQuality: syncer.AirQuality(),
					NDVI:       syncer.NDVI(),
					Date:       layers.State().SelectedDate,
				}); err != nil {
					return err
				}
			}
		},
	}
	loc.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Minute, "Refetch interval")
	return cmd
}

func modelCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Show or change the preferred AI model",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the preferred AI model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pref, err := opts.modelPreference(opts.logger())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pref.Get())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set MODEL",
		Short: "Persist the preferred AI model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pref, err := opts.modelPreference(opts.logger())
			if err != nil {
				return err
			}
			return pref.Set(args[0])
		},
	})
	return cmd
}

func tileCmd(opts *Options) *cobra.Command {
	var (
		layer    string
		date     string
		lat, lon float64
		zoom     uint
	)
	cmd := &cobra.Command{
		Use:   "tile",
		Short: "Print the GIBS tile URL covering a point",
		RunE: func(cmd *cobra.Command, _ []string) error {
			layers := dashboard.NewLayerControl(nil, opts.logger())
			defer layers.Close()

			if err := layers.SetActiveLayer(layer); err != nil {
				return err
			}
			if date != "" {
				if err := layers.SetSelectedDate(date); err != nil {
					return err
				}
			}

			tile, u, err := layers.TileURL(lat, lon, maptile.Zoom(zoom))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"layer": layers.State().ActiveLayer,
				"date":  layers.State().SelectedDate,
				"z":     tile.Z,
				"x":     tile.X,
				"y":     tile.Y,
				"url":   u,
			})
		},
	}
	cmd.Flags().StringVar(&layer, "layer", "truecolor", "Layer (truecolor, ndvi)")
	cmd.Flags().StringVar(&date, "date", "", "Imagery date YYYY-MM-DD (default: yesterday)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	cmd.Flags().UintVarP(&zoom, "zoom", "z", 5, "Zoom level")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
