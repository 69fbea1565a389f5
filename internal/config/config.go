// Package config defines all configuration for the quoting pipeline.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via HFT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"hftcore/internal/events"
	"hftcore/pkg/fixedpoint"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun      bool                `mapstructure:"dry_run"`
	Exchanges   map[string]Exchange `mapstructure:"exchanges"`
	Instruments InstrumentConfig    `mapstructure:"instruments"`
	FX          FXConfig            `mapstructure:"fx"`
	Instances   []InstanceConfig    `mapstructure:"instances"`
	Logging     LoggingConfig       `mapstructure:"logging"`
	Obs         ObsConfig           `mapstructure:"obs"`
}

// Exchange holds one venue's connection and authentication settings.
// If ApiKey is empty, that venue's gateways run in dry-run mode: orders are
// acknowledged locally and never sent to the venue.
type Exchange struct {
	RESTBaseURL string `mapstructure:"rest_base_url"`
	WSURL       string `mapstructure:"ws_url"`
	ApiKey      string `mapstructure:"api_key"`
	Secret      string `mapstructure:"secret"`
	Passphrase  string `mapstructure:"passphrase"`
}

// InstrumentConfig points at the static instrument table (§9).
type InstrumentConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// FXConfig configures the currency converter (§9): a set of directed
// rate edges and a list of currency pairs treated as equivalent without
// a graph lookup (the USD/USDT decision).
type FXConfig struct {
	IdentityPairs [][2]string `mapstructure:"identity_pairs"`
	Rates         []FXRate    `mapstructure:"rates"`
}

// FXRate is one directed edge in the FX graph: one unit of From equals
// Rate units of To.
type FXRate struct {
	From string  `mapstructure:"from"`
	To   string  `mapstructure:"to"`
	Rate float64 `mapstructure:"rate"`
}

// InstanceConfig is the on-disk form of one events.QuotingParameters
// entry (§4.4/§4.7), deployed to the instance manager at startup.
type InstanceConfig struct {
	InstrumentID   string `mapstructure:"instrument_id"`
	FVInstrumentID string `mapstructure:"fv_instrument_id"`
	FVModel        string `mapstructure:"fv_model"`
	BookName       string `mapstructure:"book_name"`
	QuotedExchange string `mapstructure:"quoted_exchange"`
	FVExchange     string `mapstructure:"fv_exchange"`

	AskSpreadBp float64 `mapstructure:"ask_spread_bp"`
	BidSpreadBp float64 `mapstructure:"bid_spread_bp"`
	SkewBp      float64 `mapstructure:"skew_bp"`
	Size        float64 `mapstructure:"size"`
	Depth       int     `mapstructure:"depth"`

	BidQuoterType string `mapstructure:"bid_quoter_type"`
	AskQuoterType string `mapstructure:"ask_quoter_type"`
	PostOnly      bool   `mapstructure:"post_only"`

	MaxCumBidFills float64 `mapstructure:"max_cum_bid_fills"`
	MaxCumAskFills float64 `mapstructure:"max_cum_ask_fills"`

	HittingLogic string  `mapstructure:"hitting_logic"`
	GroupingBp   float64 `mapstructure:"grouping_bp"`
}

// QuotingParameters translates the on-disk InstanceConfig into the
// engine/instance-manager's events.QuotingParameters, resolving the
// string-typed quoter/hitting-logic names into their enum values.
func (c InstanceConfig) QuotingParameters() (events.QuotingParameters, error) {
	bidQ, err := parseQuoterType(c.BidQuoterType)
	if err != nil {
		return events.QuotingParameters{}, fmt.Errorf("instances[%s].bid_quoter_type: %w", c.InstrumentID, err)
	}
	askQ, err := parseQuoterType(c.AskQuoterType)
	if err != nil {
		return events.QuotingParameters{}, fmt.Errorf("instances[%s].ask_quoter_type: %w", c.InstrumentID, err)
	}
	hitting, err := parseHittingLogic(c.HittingLogic)
	if err != nil {
		return events.QuotingParameters{}, fmt.Errorf("instances[%s].hitting_logic: %w", c.InstrumentID, err)
	}

	return events.QuotingParameters{
		InstrumentID:   c.InstrumentID,
		FVInstrumentID: c.FVInstrumentID,
		FVModel:        c.FVModel,
		BookName:       c.BookName,

		AskSpreadBp: decimal.NewFromFloat(c.AskSpreadBp),
		BidSpreadBp: decimal.NewFromFloat(c.BidSpreadBp),
		SkewBp:      decimal.NewFromFloat(c.SkewBp),
		Size:        fixedpoint.QuantityFromDecimal(decimal.NewFromFloat(c.Size)),
		Depth:       c.Depth,

		BidQuoterType: bidQ,
		AskQuoterType: askQ,
		PostOnly:      c.PostOnly,

		MaxCumBidFills: fixedpoint.QuantityFromDecimal(decimal.NewFromFloat(c.MaxCumBidFills)),
		MaxCumAskFills: fixedpoint.QuantityFromDecimal(decimal.NewFromFloat(c.MaxCumAskFills)),

		HittingLogic: hitting,
		GroupingBp:   decimal.NewFromFloat(c.GroupingBp),
	}, nil
}

func parseQuoterType(s string) (events.QuoterType, error) {
	switch s {
	case "", "log":
		return events.LogQuoterType, nil
	case "single":
		return events.SingleQuoterType, nil
	case "grouped_single":
		return events.GroupedSingleQuoterType, nil
	case "layered":
		return events.LayeredQuoterType, nil
	case "shadow":
		return events.ShadowQuoterType, nil
	case "shadow_maker":
		return events.ShadowMakerQuoterType, nil
	default:
		return 0, fmt.Errorf("unknown quoter_type %q", s)
	}
}

func parseHittingLogic(s string) (events.HittingLogic, error) {
	switch s {
	case "", "allow_all":
		return events.AllowAll, nil
	case "our_best":
		return events.OurBest, nil
	case "pennying":
		return events.Pennying, nil
	default:
		return 0, fmt.Errorf("unknown hitting_logic %q", s)
	}
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObsConfig controls the Prometheus/slog observability surface (§6/§9).
type ObsConfig struct {
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars named HFT_EXCHANGES_<NAME>_API_KEY,
// HFT_EXCHANGES_<NAME>_SECRET, HFT_EXCHANGES_<NAME>_PASSPHRASE.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("HFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for name, ex := range cfg.Exchanges {
		if key := os.Getenv("HFT_EXCHANGES_" + strings.ToUpper(name) + "_API_KEY"); key != "" {
			ex.ApiKey = key
		}
		if secret := os.Getenv("HFT_EXCHANGES_" + strings.ToUpper(name) + "_SECRET"); secret != "" {
			ex.Secret = secret
		}
		if pass := os.Getenv("HFT_EXCHANGES_" + strings.ToUpper(name) + "_PASSPHRASE"); pass != "" {
			ex.Passphrase = pass
		}
		cfg.Exchanges[name] = ex
	}
	if os.Getenv("HFT_DRY_RUN") == "true" || os.Getenv("HFT_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("at least one entry in exchanges is required")
	}
	for name, ex := range c.Exchanges {
		if ex.WSURL == "" {
			return fmt.Errorf("exchanges.%s.ws_url is required", name)
		}
	}
	if c.Instruments.CSVPath == "" {
		return fmt.Errorf("instruments.csv_path is required")
	}
	if len(c.Instances) == 0 {
		return fmt.Errorf("at least one entry in instances is required")
	}
	for i, inst := range c.Instances {
		if inst.InstrumentID == "" {
			return fmt.Errorf("instances[%d].instrument_id is required", i)
		}
		if inst.QuotedExchange == "" {
			return fmt.Errorf("instances[%d].quoted_exchange is required", i)
		}
		if inst.Size <= 0 {
			return fmt.Errorf("instances[%d].size must be > 0", i)
		}
	}
	return nil
}
