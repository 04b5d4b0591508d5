// Command pollenexport writes the forecast areas of one allergen and
// interval as a GeoJSON FeatureCollection with simplestyle properties.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"pollenmap/pkg/forecast"
	"pollenmap/pkg/request"
)

type options struct {
	baseURL  string
	allergen string
	interval int
	output   string
	timeout  time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "pollenexport",
		Short: "Export pollen forecast areas as GeoJSON",
		Long: `pollenexport fetches the forecast manifest and the areas of one
allergen and interval, and writes them as a GeoJSON FeatureCollection.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			write := func(out io.Writer) error { return export(cmd.Context(), opts, out) }
			var err error
			if opts.output == "" {
				err = write(cmd.OutOrStdout())
			} else {
				err = writeFile(opts.output, write)
			}
			if err != nil {
				cmd.PrintErrln(fmt.Errorf("export failed: %w", err))
				return err
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.baseURL, "url", "u", "https://api.pollen.club", "Forecast API base URL")
	rootCmd.PersistentFlags().DurationVarP(&opts.timeout, "timeout", "t", 30*time.Second, "Request timeout")
	rootCmd.Flags().StringVarP(&opts.allergen, "allergen", "a", "", "Allergen to export (default: first in manifest)")
	rootCmd.Flags().IntVarP(&opts.interval, "interval", "i", 0, "Interval in hours relative to now")
	rootCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default: stdout)")

	addListCmd(rootCmd, &opts)

	return rootCmd
}

// addListCmd adds a 'list' subcommand that prints allergens and intervals without exporting
func addListCmd(rootCmd *cobra.Command, opts *options) {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List allergens and forecast intervals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := list(cmd.Context(), *opts, cmd.OutOrStdout()); err != nil {
				cmd.PrintErrln(fmt.Errorf("list failed: %w", err))
				return err
			}
			return nil
		},
	}

	rootCmd.AddCommand(listCmd)
}

// writeFile writes through a temporary file in the target directory and
// renames it over path only when write succeeds.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func fetchManifest(ctx context.Context, client *request.Client, opts options) (*forecast.Manifest, error) {
	return forecast.NewManifestFetcher(client, opts.baseURL).Fetch(ctx)
}

func list(ctx context.Context, opts options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	client := request.New(nil, nil, request.ClientConfig{Timeout: opts.timeout})
	defer client.Close()

	m, err := fetchManifest(ctx, client, opts)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Allergens:")
	for _, a := range m.Allergens {
		fmt.Fprintf(out, "  %s\n", a)
	}
	fmt.Fprintf(out, "Intervals: %d..%d\n", m.Range.Lo, m.Range.Hi)
	return nil
}

func export(ctx context.Context, opts options, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	client := request.New(nil, nil, request.ClientConfig{Timeout: opts.timeout})
	defer client.Close()

	m, err := fetchManifest(ctx, client, opts)
	if err != nil {
		return err
	}

	allergen := opts.allergen
	if allergen == "" && len(m.Allergens) > 0 {
		allergen = m.Allergens[0]
	}

	areas, err := forecast.NewAreaFetcher(client, opts.baseURL).Fetch(ctx, m, allergen, opts.interval)
	if err != nil {
		return err
	}

	fc := areas.FeatureCollection()
	fc.ExtraMembers = map[string]any{
		"allergen": allergen,
		"interval": opts.interval,
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(fc)
}
