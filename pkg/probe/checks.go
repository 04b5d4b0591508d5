package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pollenmap/pkg/config"
	"pollenmap/pkg/forecast"
)

// Config verifies the configuration and that the log directories are writable.
func Config(cfg *config.Config) Probe {
	return Probe{
		Name:     "Configuration",
		Critical: true,
		Check: func(ctx context.Context) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			for _, p := range []string{cfg.Log.Server.Path, cfg.Log.Requests.Path} {
				if err := writableDir(filepath.Dir(p)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// ForecastAPI fetches the manifest once. The API being down is not fatal,
// the session keeps retrying on user request.
func ForecastAPI(f *forecast.ManifestFetcher) Probe {
	return Probe{
		Name: "Forecast API",
		Check: func(ctx context.Context) error {
			m, err := f.Fetch(ctx)
			if err != nil {
				return err
			}
			if len(m.Allergens) == 0 {
				return fmt.Errorf("manifest at %s lists no allergens", f.URL())
			}
			return nil
		},
	}
}

func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
