// Package setup provides a terminal wizard producing a yaml config.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

type wizardConfig struct {
	Wallet             string `yaml:"wallet"`
	Platform           string `yaml:"platform"`
	HistoryFile        string `yaml:"history_file"`
	BatchSize          int    `yaml:"batch_size"`
	AugmentConcurrency int    `yaml:"augment_concurrency"`
	WebAddr            string `yaml:"web_addr,omitempty"`
}

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		wallet      string
		platform    string
		historyFile string
		batchStr    string
		augmentStr  string
		webAddr     string
		confirm     bool
	)

	// defaults
	batchStr = "25"
	augmentStr = "4"

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LPTRACKER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Reconcile your pool positions in style.\n"))

	fmt.Println(stepStyle.Render("STEP 1: WALLET"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Wallet Address").
				Description("The wallet whose pool history will be reconciled").
				Value(&wallet).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("wallet cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("History Dump").
				Description("Path to the wallet history dump (JSONL)").
				Value(&historyFile).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("history file cannot be empty")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LPTRACKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: PRICING PLATFORM"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where to quote open-position value").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LPTRACKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: TUNING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Batch Size").
				Description("Raw transactions per classification batch").
				Value(&batchStr).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Augment Concurrency").
				Description("Max open positions valued at once").
				Value(&augmentStr).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Web Address").
				Description("Position stream server address, empty to disable (e.g. :8080)").
				Value(&webAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	batchSize, _ := strconv.Atoi(batchStr)
	augment, _ := strconv.Atoi(augmentStr)

	cfg := wizardConfig{
		Wallet:             strings.TrimSpace(wallet),
		Platform:           platform,
		HistoryFile:        strings.TrimSpace(historyFile),
		BatchSize:          batchSize,
		AugmentConcurrency: augment,
		WebAddr:            strings.TrimSpace(webAddr),
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("LPTRACKER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("CONFIRM"))
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write config.yaml?").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("aborted")
	}

	if err := os.WriteFile("config.yaml", out, 0o644); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render("config.yaml written, run: lptracker --config config.yaml"))
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}
