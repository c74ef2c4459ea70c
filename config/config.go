package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultBatchSize          = 25
	defaultAugmentConcurrency = 4
)

// Config holds the position tracker settings.
type Config struct {
	Wallet             string
	Platform           string
	HistoryFile        string
	BatchSize          int
	AugmentConcurrency int
	WalDir             string
	WebAddr            string
}

type configTmp struct {
	Wallet             string        `yaml:"wallet"`
	Platform           string        `yaml:"platform"`
	HistoryFile        string        `yaml:"history_file"`
	BatchSize          int           `yaml:"batch_size,omitempty"`
	AugmentConcurrency int           `yaml:"augment_concurrency,omitempty"`
	WalDir             string `yaml:"wal_dir,omitempty"`
	WebAddr            string `yaml:"web_addr,omitempty"`
}

// Get loads the configuration from the yaml file passed via --config, or
// from CLI flags when no config file is given.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	wallet := flag.String("wallet", "", "wallet address whose pool history to reconcile")
	platform := flag.String("platform", "binance", "price platform: binance or bybit")
	historyFile := flag.String("history", "", "path to the wallet history dump (JSONL)")
	batchSize := flag.Int("batchsize", defaultBatchSize, "raw transactions per classification batch")
	augment := flag.Int("augmentconcurrency", defaultAugmentConcurrency, "max concurrent open-position augmentations")
	walDir := flag.String("waldir", "", "directory for the position journal")
	webAddr := flag.String("webaddr", "", "address for the position stream server, empty disables it")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	cfg := Config{
		Wallet:             *wallet,
		Platform:           *platform,
		HistoryFile:        *historyFile,
		BatchSize:          *batchSize,
		AugmentConcurrency: *augment,
		WalDir:             *walDir,
		WebAddr:            *webAddr,
	}

	return cfg, cfg.validate()
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Wallet:             tmp.Wallet,
		Platform:           tmp.Platform,
		HistoryFile:        tmp.HistoryFile,
		BatchSize:          tmp.BatchSize,
		AugmentConcurrency: tmp.AugmentConcurrency,
		WalDir:             tmp.WalDir,
		WebAddr:            tmp.WebAddr,
	}
	if cfg.Platform == "" {
		cfg.Platform = "binance"
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Wallet == "" {
		return fmt.Errorf("'wallet' param is required")
	}
	if c.HistoryFile == "" {
		return fmt.Errorf("'history_file' param is required")
	}
	if c.Platform != "binance" && c.Platform != "bybit" {
		return fmt.Errorf("unsupported platform %q, expected binance or bybit", c.Platform)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.AugmentConcurrency <= 0 {
		c.AugmentConcurrency = defaultAugmentConcurrency
	}
	return nil
}
