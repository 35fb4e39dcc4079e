package main

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/g19d/internal/applet"
	"github.com/jmylchreest/g19d/internal/apps"
	"github.com/jmylchreest/g19d/internal/config"
	"github.com/jmylchreest/g19d/internal/notify"
	"github.com/jmylchreest/g19d/internal/raster"
)

var renderOpts struct {
	output  string
	summary string
	body    string
}

var renderCmd = &cobra.Command{
	Use:   "render <applet>",
	Short: "Render one applet frame to a PNG file",
	Long: `Render the frame an applet would show on the display and save it as PNG,
without opening the keyboard. Useful for checking backgrounds and colours.

Applets: watch, backlight, switcher, notification.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderOpts.output, "output", "o", "g19d.png",
		"Output PNG path")
	renderCmd.Flags().StringVar(&renderOpts.summary, "summary", "Preview",
		"Notification summary (notification applet only)")
	renderCmd.Flags().StringVar(&renderOpts.body, "body", "This is how notifications look on the keyboard display.",
		"Notification body (notification applet only)")
}

// previewController satisfies apps.Controller without a scheduler.
type previewController struct {
	listed []string
}

func (p previewController) ChangeApp(string) error        { return nil }
func (p previewController) Irq(string) error              { return nil }
func (p previewController) Unirq()                        {}
func (p previewController) Listed() []string              { return p.listed }
func (p previewController) SetAmbientEnabled(bool)        {}
func (p previewController) ApplyColor(raster.Color, bool) {}

func newRenderer(name string, cfg *config.Config) (applet.Renderer, error) {
	ctl := previewController{listed: cfg.Display.Applets}
	switch name {
	case apps.WatchName:
		return apps.NewWatch(cfg.Watch, logger), nil
	case apps.BacklightName:
		return apps.NewBacklight(ctl, cfg.Backlight), nil
	case apps.SwitcherName:
		return apps.NewSwitcher(ctl, logger), nil
	case apps.NotificationName:
		n := apps.NewNotification(ctl, cfg.Notifications, nil, logger)
		n.SetCurrent(notify.Record{
			AppName:  "g19d",
			Summary:  renderOpts.summary,
			Body:     renderOpts.body,
			Received: time.Now(),
		})
		return n, nil
	}
	return nil, fmt.Errorf("unknown applet %q", name)
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := newRenderer(args[0], cfg)
	if err != nil {
		return err
	}

	a := applet.New(r, nil, logger)
	img := raster.FrameImage(a.Snapshot())

	f, err := os.Create(renderOpts.output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	info, err := os.Stat(renderOpts.output)
	if err != nil {
		return err
	}
	nameStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	fmt.Printf("%s %s %s\n",
		nameStyle.Render(a.Name()),
		renderOpts.output,
		dimStyle.Render(fmt.Sprintf("(%dx%d, %s)", raster.Width, raster.Height, humanize.Bytes(uint64(info.Size())))))
	return nil
}
