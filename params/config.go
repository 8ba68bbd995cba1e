package params

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Enterprise holds configuration for the enterprise validator process
// (C2 chain + C1 order book + C3 API).
type Enterprise struct {
	ValidatorID string
	Port        int
	Stake       uint64
	TrackerURL  string
	DataDir     string
}

// Tracker holds configuration for the tracker process (C4 hub + C5 forwarder).
type Tracker struct {
	ListenAddr      string
	EnterpriseURL   string
	DataDir         string
	ForwardInterval int // seconds between C5 re-scan ticks
}

// DefaultEnterprise mirrors the teacher's Default()+LoadFromEnv() split:
// a baked-in default, overridable by .env, overridable by the environment.
func DefaultEnterprise() Enterprise {
	return Enterprise{
		ValidatorID: "validator1",
		Port:        8080,
		Stake:       1000,
		TrackerURL:  "http://localhost:3030",
		DataDir:     "data",
	}
}

func DefaultTracker() Tracker {
	return Tracker{
		ListenAddr:      "0.0.0.0:3030",
		EnterpriseURL:   "http://localhost:8080",
		DataDir:         "data",
		ForwardInterval: 10,
	}
}

// LoadEnterprise loads config from .env (if present), environment variables,
// and CLI flags, in that increasing order of precedence — matching the
// teacher's "ENV > .env file > defaults" comment in params.LoadFromEnv,
// extended here with flags since spec.md names --id/--port/--stake directly.
func LoadEnterprise(args []string) Enterprise {
	cfg := DefaultEnterprise()
	_ = godotenv.Load()

	if v := os.Getenv("TRACKER_URL"); v != "" {
		cfg.TrackerURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	fs := flag.NewFlagSet("enterprise", flag.ContinueOnError)
	id := fs.String("id", cfg.ValidatorID, "validator id")
	port := fs.Int("port", cfg.Port, "HTTP port for the enterprise API")
	stake := fs.Uint64("stake", cfg.Stake, "this validator's stake weight")
	_ = fs.Parse(args)

	cfg.ValidatorID = *id
	cfg.Port = *port
	cfg.Stake = *stake
	return cfg
}

// LoadTracker loads tracker configuration the same way.
func LoadTracker(args []string) Tracker {
	cfg := DefaultTracker()
	_ = godotenv.Load()

	if v := os.Getenv("ENTERPRISE_BC_URL"); v != "" {
		cfg.EnterpriseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("TRACKER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FORWARD_INTERVAL_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ForwardInterval = n
		}
	}

	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	addr := fs.String("addr", cfg.ListenAddr, "listen address")
	enterprise := fs.String("enterprise-url", cfg.EnterpriseURL, "enterprise ingest base URL")
	_ = fs.Parse(args)

	cfg.ListenAddr = *addr
	cfg.EnterpriseURL = *enterprise
	return cfg
}
