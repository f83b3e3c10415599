package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// Version is the version of the application, set at build time
var Version = "dev"

type rootOptions struct {
	configPath string
	dbPath     string
	cacheDir   string
	logLevel   string
	quiet      bool
	stats      bool

	out io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	root := &cobra.Command{
		Use:          "photorama",
		Short:        "Browse and cache Flickr photo listings",
		SilenceUsage: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flags.StringVar(&opts.dbPath, "db", "", "Path to database file (overrides config)")
	flags.StringVar(&opts.cacheDir, "cache-dir", "", "Image cache directory (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, off")
	flags.BoolVar(&opts.quiet, "quiet", false, "Skip startup banner")
	flags.BoolVar(&opts.stats, "stats", false, "Print fetch counters when the command finishes")

	root.AddCommand(
		newFetchCmd(opts),
		newListCmd(opts),
		newTagsCmd(opts),
		newImageCmd(opts),
		newOpenCmd(opts),
		newFavoriteCmd(opts),
		newViewCmd(opts),
		newSearchCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(opts),
	)

	return root
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if !opts.quiet {
				showBanner(opts.out)
			}
			fmt.Fprintf(opts.out, "photorama %s\n", Version)
			fmt.Fprintln(opts.out, "Flickr photo browser")
			fmt.Fprintln(opts.out, "github.com/pders01/photorama")
		},
	}
}

func showBanner(w io.Writer) {
	colors := []lipgloss.Color{
		lipgloss.Color("#FF6B6B"),
		lipgloss.Color("#FFA86B"),
		lipgloss.Color("#95E1D3"),
		lipgloss.Color("#4ECDC4"),
		lipgloss.Color("#FF6B6B"),
	}

	lines := []string{
		"█▀█ █ █ █▀█ ▀█▀ █▀█ █▀█ ▄▀█ █▀▄▀█ ▄▀█",
		"█▀▀ █▀█ █▄█  █  █▄█ █▀▄ █▀█ █ ▀ █ █▀█",
		"",
		"Flickr Photo Browser " + Version,
	}

	var coloredLines []string
	for i, line := range lines {
		if line == "" {
			coloredLines = append(coloredLines, line)
			continue
		}

		style := lipgloss.NewStyle().
			Foreground(colors[i%len(colors)]).
			Bold(i < 2)

		coloredLines = append(coloredLines, style.Render(line))
	}

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(1, 3).
		MarginTop(1)

	banner := lipgloss.JoinVertical(lipgloss.Center, coloredLines...)
	fmt.Fprintln(w, lipgloss.NewStyle().
		Width(70).
		Align(lipgloss.Center).
		Render(borderStyle.Render(banner)))

	separator := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#95E1D3")).
		Render("◆ ◇ ◆ ◇ ◆")

	fmt.Fprintln(w, lipgloss.NewStyle().
		Width(70).
		Align(lipgloss.Center).
		MarginBottom(1).
		Render(separator))
}
