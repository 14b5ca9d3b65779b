package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/bryanchriswhite/CamStreamer/internal/config"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the configured capture devices",
	Long:  `Print every camera entry from the config file with its source, rate and buffering mode.`,
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	cfg := configMgr.Get()
	if len(cfg.Cameras) == 0 {
		fmt.Println("No cameras configured.")
		fmt.Printf("Edit %s to add some.\n", configMgr.GetConfigPath())
		return nil
	}

	names := make([]string, 0, len(cfg.Cameras))
	for name := range cfg.Cameras {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tFPS\tBUFFER\tPLACEHOLDER")
	for _, name := range names {
		cam := cfg.Cameras[name]
		fps := "unthrottled"
		if cam.FPS > 0 {
			fps = fmt.Sprintf("%g", cam.FPS)
		}
		bufMode := string(cam.Buffer)
		if cam.Buffer == config.BufferQueue {
			bufMode = fmt.Sprintf("queue(%d)", cam.Capacity)
		}
		placeholder := "off"
		if cam.Placeholder.Enabled {
			placeholder = fmt.Sprintf("%q", cam.Placeholder.Text)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, cam.Source, fps, bufMode, placeholder)
	}
	return w.Flush()
}
