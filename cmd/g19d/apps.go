package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/g19d/internal/applet"
	"github.com/jmylchreest/g19d/internal/apps"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List the configured applets",
	Long: `List the applets the daemon will run, in switcher order, with their
render interval. Hidden applets are opened by keys or events, not from the
switcher.`,
	Args: cobra.NoArgs,
	RunE: runApps,
}

func init() {
	rootCmd.AddCommand(appsCmd)
}

func runApps(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	names := append([]string(nil), cfg.Display.Applets...)
	names = append(names, apps.SwitcherName)
	if cfg.Notifications.Enabled {
		names = append(names, apps.NotificationName)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	nameStyle := lipgloss.NewStyle().Width(14)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-14s%-10s%s", "APPLET", "LISTED", "INTERVAL")))
	for i, name := range names {
		r, err := newRenderer(name, cfg)
		if err != nil {
			return err
		}
		listed := dimStyle.Render("hidden")
		if r.Listed() {
			listed = "yes"
		}
		label := name
		if i == 0 {
			label += "*"
		}
		interval := max(r.Interval(), applet.MinCooldown)
		fmt.Printf("%s%-10s%s\n", nameStyle.Render(label), listed, interval)
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("* shown at startup; %s opens the switcher", cfg.Display.SwitcherKey)))
	return nil
}
