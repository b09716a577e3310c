package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/SuchAFuriousDeath/tether/internal/clipboard"
	"github.com/SuchAFuriousDeath/tether/internal/config"
	"github.com/SuchAFuriousDeath/tether/internal/platform"
)

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusKeyStyle   = lipgloss.NewStyle().Width(18).Foreground(lipgloss.Color("8"))
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	statusWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the session environment and resolved configuration",
	Long: `Status reports which display backend the session offers, whether a
clipboard transfer command is available for it, and the configuration the
daemon would run with.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	backend := platform.DetectBackend()
	if cfg.Display.Backend != "" {
		parsed, err := platform.ParseBackend(cfg.Display.Backend)
		if err != nil {
			return err
		}
		backend = parsed
	}

	fmt.Println(statusTitleStyle.Render("Session"))
	printStatusLine("display backend", statusOKStyle.Render(backend.String()))

	if _, err := clipboard.NewCommandTransfer(backend); err != nil {
		printStatusLine("clipboard", statusWarnStyle.Render("unavailable: "+err.Error()))
	} else {
		printStatusLine("clipboard", statusOKStyle.Render("available"))
	}

	fmt.Println()
	fmt.Println(statusTitleStyle.Render("Configuration"))

	path := globalOpts.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	if info, err := os.Stat(path); err == nil {
		printStatusLine("file", fmt.Sprintf("%s (modified %s)", path, humanize.Time(info.ModTime())))
	} else {
		printStatusLine("file", statusWarnStyle.Render(path+" (not present, defaults in use)"))
	}

	printStatusLine("poll interval", cfg.Worker.PollInterval.Duration().String())
	printStatusLine("join timeout", cfg.Worker.JoinTimeout.Duration().String())
	printStatusLine("stop retries", fmt.Sprintf("%d every %s",
		cfg.Worker.StopMaxRetries, cfg.Worker.StopRetryInterval.Duration()))
	printStatusLine("shutdown timeout", cfg.Behavior.ShutdownTimeout.Duration().String())
	if d := cfg.Behavior.AutoClose.Duration(); d > 0 {
		printStatusLine("auto close", d.String())
	} else {
		printStatusLine("auto close", "disabled")
	}
	printStatusLine("log level", cfg.Logging.Level)

	return nil
}

func printStatusLine(key, value string) {
	fmt.Printf("%s %s\n", statusKeyStyle.Render(key), value)
}
