package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Hydro struct {
		Workers                 int     `env:"HYDRO_WORKERS" envDefault:"0"` // 0 means GOMAXPROCS
		AllocationMaxIterations int     `env:"HYDRO_ALLOC_MAX_ITERATIONS" envDefault:"200"`
		AllocationTolerance     float64 `env:"HYDRO_ALLOC_TOLERANCE" envDefault:"1e-4"`
		SitingMaxIterations     int     `env:"HYDRO_SITING_MAX_ITERATIONS" envDefault:"1000"`
		SitingEpsilon           float64 `env:"HYDRO_SITING_EPSILON" envDefault:"1e-6"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}
