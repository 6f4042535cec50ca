package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the configuration struct for the service.
type Config struct {
	// Markets represents the traded markets.
	Markets []string
	// ContractCodes are market to contract code pairs, eg. MXF=MXFR1.
	ContractCodes []string
	// Quantity is the contract quantity per signal.
	Quantity int
	// FeedURL is the websocket tick feed endpoint.
	FeedURL string
	// GatewayURL is the trade gateway endpoint.
	GatewayURL string
	// GatewayAPIKey is the trade gateway API key.
	GatewayAPIKey string
	// DBEndpoint is the database connection endpoint.
	DBEndpoint string
	// DBUser is the database user.
	DBUser string
	// DBPass is the database user pass.
	DBPass string
	// Sessions are the tradable sessions, eg. 08:45-13:45,15:00-05:00.
	Sessions string
	// WarmupBars is the hourly bar count used to seed the strategy.
	WarmupBars int
	// StopLossPoints is the fixed stop distance in points.
	StopLossPoints float64
	// TrailTriggerPoints is the profit arming the trailing stop.
	TrailTriggerPoints float64
	// TrailRetrace is the retrace fraction firing the trailing stop.
	TrailRetrace float64
	// AccelFactor is the starting parabolic acceleration factor.
	AccelFactor float64
	// MaxAccelFactor is the parabolic acceleration factor cap.
	MaxAccelFactor float64
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestMarket is the market being backtested.
	BacktestMarket string
	// BacktestStart is the backtest range start date, eg. 2024-01-02.
	BacktestStart string
	// BacktestEnd is the backtest range end date, exclusive.
	BacktestEnd string
	// StartCash is the backtest starting account balance.
	StartCash float64
	// Slippage is the per-fill adverse price adjustment in points.
	Slippage float64
	// FeePerContract is the per-contract fee.
	FeePerContract float64
	// OutputDir is the backtest artifact directory.
	OutputDir string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.DBEndpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("db endpoint cannot be an empty string"))
	}

	switch cfg.Backtest {
	case true:
		if cfg.BacktestMarket == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest market cannot be an empty string"))
		}
		if cfg.BacktestStart == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest start date cannot be an empty string"))
		}
		if cfg.BacktestEnd == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest end date cannot be an empty string"))
		}
	case false:
		if len(cfg.Markets) == 0 {
			errs = errors.Join(errs, fmt.Errorf("no markets provided for trader"))
		}
		if len(cfg.ContractCodes) == 0 {
			errs = errors.Join(errs, fmt.Errorf("no contract codes provided for trader"))
		}
		if cfg.FeedURL == "" {
			errs = errors.Join(errs, fmt.Errorf("feed url cannot be an empty string"))
		}
		if cfg.GatewayURL == "" {
			errs = errors.Join(errs, fmt.Errorf("gateway url cannot be an empty string"))
		}
	}

	return errs
}

// contractCodes expands the market=code pairs into a lookup.
func (cfg *Config) contractCodes() (map[string]string, error) {
	codes := make(map[string]string, len(cfg.ContractCodes))
	for _, pair := range cfg.ContractCodes {
		market, code, ok := strings.Cut(pair, "=")
		if !ok || market == "" || code == "" {
			return nil, fmt.Errorf("malformed contract code pair %q", pair)
		}

		codes[market] = code
	}

	return codes, nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	type flagSpec struct {
		name  string
		value interface{}
		usage string
	}

	specs := []flagSpec{
		{"markets", &cfg.Markets, "the traded markets"},
		{"contractcodes", &cfg.ContractCodes, "the market to contract code pairs"},
		{"quantity", &cfg.Quantity, "the contract quantity per signal"},
		{"feedurl", &cfg.FeedURL, "the websocket tick feed endpoint"},
		{"gatewayurl", &cfg.GatewayURL, "the trade gateway endpoint"},
		{"gatewayapikey", &cfg.GatewayAPIKey, "the trade gateway api key"},
		{"dbendpoint", &cfg.DBEndpoint, "the database connection endpoint"},
		{"dbuser", &cfg.DBUser, "the database user"},
		{"dbpass", &cfg.DBPass, "the database user pass"},
		{"sessions", &cfg.Sessions, "the tradable sessions"},
		{"warmupbars", &cfg.WarmupBars, "the hourly warmup bar count"},
		{"stoplosspoints", &cfg.StopLossPoints, "the fixed stop distance in points"},
		{"trailtriggerpoints", &cfg.TrailTriggerPoints, "the profit arming the trailing stop"},
		{"trailretrace", &cfg.TrailRetrace, "the retrace fraction firing the trailing stop"},
		{"accelfactor", &cfg.AccelFactor, "the starting acceleration factor"},
		{"maxaccelfactor", &cfg.MaxAccelFactor, "the acceleration factor cap"},
		{"backtest", &cfg.Backtest, "the backtest flag"},
		{"backtestmarket", &cfg.BacktestMarket, "the market being backtested"},
		{"backteststart", &cfg.BacktestStart, "the backtest range start date"},
		{"backtestend", &cfg.BacktestEnd, "the backtest range end date"},
		{"startcash", &cfg.StartCash, "the backtest starting account balance"},
		{"slippage", &cfg.Slippage, "the per-fill adverse price adjustment in points"},
		{"feepercontract", &cfg.FeePerContract, "the per-contract fee"},
		{"outputdir", &cfg.OutputDir, "the backtest artifact directory"},
	}

	for _, spec := range specs {
		err = cfg.registerFlag(spec.name, spec.value, spec.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
