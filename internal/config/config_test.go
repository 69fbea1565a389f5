package config

import (
	"os"
	"path/filepath"
	"testing"

	"hftcore/internal/events"
)

const sampleYAML = `
dry_run: true
exchanges:
  binance:
    rest_base_url: https://api.binance.example
    ws_url: wss://stream.binance.example
instruments:
  csv_path: instruments.csv
fx:
  identity_pairs:
    - [USD, USDT]
instances:
  - instrument_id: BTC-USD
    quoted_exchange: binance
    size: 0.01
logging:
  level: info
  format: json
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesNestedStructures(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeTempConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.DryRun {
		t.Errorf("DryRun = false, want true")
	}
	ex, ok := cfg.Exchanges["binance"]
	if !ok {
		t.Fatalf("missing exchanges.binance")
	}
	if ex.WSURL != "wss://stream.binance.example" {
		t.Errorf("WSURL = %q, want wss://stream.binance.example", ex.WSURL)
	}
	if len(cfg.Instances) != 1 || cfg.Instances[0].InstrumentID != "BTC-USD" {
		t.Errorf("unexpected instances: %+v", cfg.Instances)
	}
}

func TestLoadAppliesEnvOverrideForExchangeApiKey(t *testing.T) {
	t.Setenv("HFT_EXCHANGES_BINANCE_API_KEY", "from-env")
	cfg, err := Load(writeTempConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Exchanges["binance"].ApiKey != "from-env" {
		t.Errorf("ApiKey = %q, want from-env", cfg.Exchanges["binance"].ApiKey)
	}
}

func TestValidateRejectsMissingInstances(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeTempConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Instances = nil
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for empty instances")
	}
}

func TestValidateAcceptsSampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeTempConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestQuotingParametersDefaultsQuoterTypesToLog(t *testing.T) {
	t.Parallel()
	c := InstanceConfig{InstrumentID: "BTC-USD", Size: 1}
	p, err := c.QuotingParameters()
	if err != nil {
		t.Fatalf("QuotingParameters: %v", err)
	}
	if p.BidQuoterType != events.LogQuoterType || p.AskQuoterType != events.LogQuoterType {
		t.Errorf("expected default quoter types to be LogQuoterType, got bid=%v ask=%v", p.BidQuoterType, p.AskQuoterType)
	}
	if p.HittingLogic != events.AllowAll {
		t.Errorf("HittingLogic = %v, want AllowAll", p.HittingLogic)
	}
}

func TestQuotingParametersResolvesNamedEnums(t *testing.T) {
	t.Parallel()
	c := InstanceConfig{
		InstrumentID:  "BTC-USD",
		Size:          1,
		BidQuoterType: "single",
		AskQuoterType: "layered",
		HittingLogic:  "pennying",
	}
	p, err := c.QuotingParameters()
	if err != nil {
		t.Fatalf("QuotingParameters: %v", err)
	}
	if p.BidQuoterType != events.SingleQuoterType {
		t.Errorf("BidQuoterType = %v, want SingleQuoterType", p.BidQuoterType)
	}
	if p.AskQuoterType != events.LayeredQuoterType {
		t.Errorf("AskQuoterType = %v, want LayeredQuoterType", p.AskQuoterType)
	}
	if p.HittingLogic != events.Pennying {
		t.Errorf("HittingLogic = %v, want Pennying", p.HittingLogic)
	}
}

func TestQuotingParametersRejectsUnknownQuoterType(t *testing.T) {
	t.Parallel()
	c := InstanceConfig{InstrumentID: "BTC-USD", Size: 1, BidQuoterType: "bogus"}
	if _, err := c.QuotingParameters(); err == nil {
		t.Errorf("expected error for unknown bid_quoter_type")
	}
}
