package main

import (
	"flag"
	"os"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr []string
	}{
		{
			name: "valid config, not backtest",
			cfg: Config{
				Markets:       []string{"MXF"},
				ContractCodes: []string{"MXF=MXFR1"},
				FeedURL:       "wss://feed.example.com/ticks",
				GatewayURL:    "https://gateway.example.com",
				DBEndpoint:    "http://localhost:4001",
				Backtest:      false,
			},
			wantErr: nil,
		},
		{
			name: "missing markets, not backtest",
			cfg: Config{
				ContractCodes: []string{"MXF=MXFR1"},
				FeedURL:       "wss://feed.example.com/ticks",
				GatewayURL:    "https://gateway.example.com",
				DBEndpoint:    "http://localhost:4001",
				Backtest:      false,
			},
			wantErr: []string{"no markets provided for trader"},
		},
		{
			name: "missing feed and gateway urls, not backtest",
			cfg: Config{
				Markets:       []string{"MXF"},
				ContractCodes: []string{"MXF=MXFR1"},
				DBEndpoint:    "http://localhost:4001",
				Backtest:      false,
			},
			wantErr: []string{
				"feed url cannot be an empty string",
				"gateway url cannot be an empty string",
			},
		},
		{
			name: "backtest true, valid range",
			cfg: Config{
				Backtest:       true,
				BacktestMarket: "MXF",
				BacktestStart:  "2024-01-02",
				BacktestEnd:    "2024-06-28",
				DBEndpoint:     "http://localhost:4001",
			},
			wantErr: nil,
		},
		{
			name: "backtest true, missing range",
			cfg: Config{
				Backtest:       true,
				BacktestMarket: "MXF",
				DBEndpoint:     "http://localhost:4001",
			},
			wantErr: []string{
				"backtest start date cannot be an empty string",
				"backtest end date cannot be an empty string",
			},
		},
		{
			name: "missing db endpoint",
			cfg: Config{
				Backtest:       true,
				BacktestMarket: "MXF",
				BacktestStart:  "2024-01-02",
				BacktestEnd:    "2024-06-28",
			},
			wantErr: []string{"db endpoint cannot be an empty string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("expected error(s) %v, got none", tt.wantErr)
					return
				}
				for _, want := range tt.wantErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			}
		})
	}
}

func TestContractCodes(t *testing.T) {
	cfg := Config{ContractCodes: []string{"MXF=MXFR1", "TXF=TXFR1"}}
	codes, err := cfg.contractCodes()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if codes["MXF"] != "MXFR1" || codes["TXF"] != "TXFR1" {
		t.Errorf("unexpected contract codes: %v", codes)
	}

	cfg = Config{ContractCodes: []string{"MXF"}}
	if _, err := cfg.contractCodes(); err == nil {
		t.Errorf("expected an error for a malformed pair")
	}
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args and environment
	origArgs := os.Args
	origEnv := os.Environ()
	defer func() {
		os.Args = origArgs
		for _, kv := range origEnv {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 {
				os.Setenv(parts[0], parts[1])
			}
		}
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		expectCfg   Config
	}{
		{
			name: "all from env, not backtest",
			env: map[string]string{
				"markets":       "MXF,TXF",
				"contractcodes": "MXF=MXFR1,TXF=TXFR1",
				"feedurl":       "wss://feed.example.com/ticks",
				"gatewayurl":    "https://gateway.example.com",
				"dbendpoint":    "http://localhost:4001",
				"backtest":      "false",
			},
			args:      []string{"cmd"},
			expectErr: false,
			expectCfg: Config{
				Markets:    []string{"MXF", "TXF"},
				FeedURL:    "wss://feed.example.com/ticks",
				DBEndpoint: "http://localhost:4001",
				Backtest:   false,
			},
		},
		{
			name: "all from flags, backtest",
			env:  map[string]string{},
			args: []string{"cmd", "-backtest=true", "-backtestmarket=MXF",
				"-backteststart=2024-01-02", "-backtestend=2024-06-28",
				"-dbendpoint=http://localhost:4001", "-startcash=500000"},
			expectErr: false,
			expectCfg: Config{
				Backtest:       true,
				BacktestMarket: "MXF",
				BacktestStart:  "2024-01-02",
				BacktestEnd:    "2024-06-28",
				DBEndpoint:     "http://localhost:4001",
				StartCash:      500000,
			},
		},
		{
			name:        "missing everything",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"no markets provided for trader", "db endpoint cannot be an empty string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			// Set environment variables
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			// Set command-line arguments
			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "") // don't load .env file

			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
			} else {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				// Only check fields that are set in expectCfg
				if len(tt.expectCfg.Markets) != len(cfg.Markets) {
					t.Errorf("Markets: got %v, want %v", cfg.Markets, tt.expectCfg.Markets)
				}
				if tt.expectCfg.FeedURL != "" && cfg.FeedURL != tt.expectCfg.FeedURL {
					t.Errorf("FeedURL: got %v, want %v", cfg.FeedURL, tt.expectCfg.FeedURL)
				}
				if cfg.Backtest != tt.expectCfg.Backtest {
					t.Errorf("Backtest: got %v, want %v", cfg.Backtest, tt.expectCfg.Backtest)
				}
				if tt.expectCfg.BacktestMarket != "" && cfg.BacktestMarket != tt.expectCfg.BacktestMarket {
					t.Errorf("BacktestMarket: got %v, want %v", cfg.BacktestMarket, tt.expectCfg.BacktestMarket)
				}
				if tt.expectCfg.StartCash != 0 && cfg.StartCash != tt.expectCfg.StartCash {
					t.Errorf("StartCash: got %v, want %v", cfg.StartCash, tt.expectCfg.StartCash)
				}
			}

			// Clean up env
			for k := range tt.env {
				os.Unsetenv(k)
			}
		})
	}
}
