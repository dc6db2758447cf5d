package configuration

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type (
	Properties struct {
		LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

		Auth      AuthProperties       `envPrefix:"AUTH_"`
		S3        S3Properties         `envPrefix:"S3_"`
		DB        DocumentDBProperties `envPrefix:"DB_"`
		Redis     RedisProperties      `envPrefix:"REDIS_"`
		Server    HttpServerProperties `envPrefix:"HTTP_"`
		Face      FaceSearchProperties `envPrefix:"FACE_"`
		Match     MatchProperties      `envPrefix:"MATCH_"`
		Catalog   CatalogProperties    `envPrefix:"CATALOG_"`
		Allocator AllocatorProperties  `envPrefix:"ALLOCATOR_"`
		Reconcile ReconcileProperties  `envPrefix:"RECONCILE_"`
	}

	// AuthProperties configures bearer ID-token verification. An empty Host
	// switches the server to the X-User-Email development header.
	AuthProperties struct {
		Host              string        `env:"HOST"`
		ID                string        `env:"ID"`
		IDTokenCookieName string        `env:"ID_TOKEN_COOKIE" envDefault:"id_token"`
		ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	}

	HttpServerProperties struct {
		Name         string        `env:"NAME" envDefault:"photomatch"`
		Port         string        `env:"PORT" envDefault:"8088"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
		AllowOrigins []string      `env:"ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		Debug        bool          `env:"DEBUG" envDefault:"false"`
	}

	FaceSearchProperties struct {
		Host    string        `env:"HOST" envDefault:"http://localhost:9090"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"20s"`
	}

	S3Properties struct {
		Host      string `env:"HOST" envDefault:"localhost:9000"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		Bucket    string `env:"BUCKET" envDefault:"photomatch"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
		// PartSize and Threads drive multi-part uploads.
		PartSize  uint64        `env:"PART_SIZE" envDefault:"16777216"`
		Threads   uint          `env:"THREADS" envDefault:"4"`
		URLExpiry time.Duration `env:"URL_EXPIRY" envDefault:"168h"`
	}

	DocumentDBProperties struct {
		URL       string `env:"URL" envDefault:"ws://localhost:8000/rpc"`
		Namespace string `env:"NAMESPACE" envDefault:"photomatch"`
		Database  string `env:"DATABASE" envDefault:"photomatch"`
		User      string `env:"USER"`
		Password  string `env:"PASSWORD"`
		// InMemory replaces the document store with a process-local one.
		InMemory bool `env:"IN_MEMORY" envDefault:"false"`
	}

	RedisProperties struct {
		URL string `env:"URL"`
	}

	MatchProperties struct {
		Threshold    float64       `env:"THRESHOLD" envDefault:"70"`
		MissTTL      time.Duration `env:"MISS_TTL" envDefault:"24h"`
		MissCacheLen int           `env:"MISS_CACHE_SIZE" envDefault:"4096"`
		FanOutLimit  int           `env:"FANOUT_LIMIT" envDefault:"8"`
	}

	CatalogProperties struct {
		PageSize int `env:"PAGE_SIZE" envDefault:"300"`
	}

	AllocatorProperties struct {
		Attempts         int  `env:"ATTEMPTS" envDefault:"10"`
		DegradedFallback bool `env:"DEGRADED_FALLBACK" envDefault:"false"`
		StatsRetries     int  `env:"STATS_RETRIES" envDefault:"5"`
	}

	ReconcileProperties struct {
		Schedule string `env:"SCHEDULE" envDefault:"@every 6h"`
		Enabled  bool   `env:"ENABLED" envDefault:"false"`
	}
)

// Parse reads Properties from the environment.
func Parse() (*Properties, error) {
	config := &Properties{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	return config, nil
}

func ReadProperties() *Properties {
	config, err := Parse()
	if err != nil {
		panic(err)
	}
	return config
}
