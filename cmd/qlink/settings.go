package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/qlink/internal/profiler"
	"github.com/srg/qlink/pkg/config"
	"gopkg.in/yaml.v3"
)

// settingsCmd represents the settings command group
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and edit profiler settings",
	Long: `Profiler settings describe the survey line: where the first and last
stations are, the spacing between stations, the probe depth at both ends, the
line heading and the probe's vertical position.

Settings are stored as YAML (settings_file in the config, or --file).
A missing file means factory defaults.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Change settings and save them",
	Long: fmt.Sprintf(`Changes one or more settings and saves the file. Nothing is saved when any
value is invalid.

Keys: %s

Example:
  qlink settings set spacing=0.5 last_position=20 site="North field"`, strings.Join(profiler.Keys(), ", ")),
	Args: cobra.MinimumNArgs(1),
	RunE: runSettingsSet,
}

var settingsPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "List the stations and optionally render the depth profile",
	Args:  cobra.NoArgs,
	RunE:  runSettingsPreview,
}

var (
	settingsFile       string
	settingsFormat     string
	settingsPreviewOut string
)

func init() {
	settingsCmd.PersistentFlags().StringVar(&settingsFile, "file", "", "Settings file (default from config)")
	settingsShowCmd.Flags().StringVarP(&settingsFormat, "format", "f", "table", "Output format (table, yaml)")
	settingsPreviewCmd.Flags().StringVarP(&settingsPreviewOut, "out", "o", "", "Write the depth profile chart to this PNG file")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsPreviewCmd)
}

// settingsEnv is what every settings subcommand starts from.
type settingsEnv struct {
	path     string
	settings profiler.Settings
	cfg      *config.Config
	logger   *logrus.Logger
}

// loadSettings resolves the settings file and reads it. A missing file yields the
// defaults.
func loadSettings(cmd *cobra.Command) (*settingsEnv, error) {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return nil, err
	}

	env := &settingsEnv{path: cfg.SettingsFile, cfg: cfg, logger: logger}
	if settingsFile != "" {
		env.path = settingsFile
	}

	env.settings, err = profiler.Load(env.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.WithField("file", env.path).Debug("Settings file not found, using defaults")
		env.settings = profiler.Default()
		return env, nil
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsFormat != "table" && settingsFormat != "yaml" {
		return fmt.Errorf("invalid format '%s': must be one of [table yaml]", settingsFormat)
	}

	env, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	if settingsFormat == "yaml" {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		if err := enc.Encode(env.settings); err != nil {
			return err
		}
		return enc.Close()
	}
	return writeSettingsTable(cmd.OutOrStdout(), env.settings)
}

func writeSettingsTable(out io.Writer, s profiler.Settings) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Site\t%s\n", s.Site)
	fmt.Fprintf(w, "Position vertical\t%.2f m\n", s.PositionVertical)
	fmt.Fprintf(w, "Spacing\t%.2f m\n", s.Spacing)
	fmt.Fprintf(w, "Line heading\t%.0f°\n", s.LineHeading)
	fmt.Fprintf(w, "First position\t%.2f m\n", s.FirstPosition)
	fmt.Fprintf(w, "First depth\t%.2f m\n", s.FirstDepth)
	fmt.Fprintf(w, "Last position\t%.2f m\n", s.LastPosition)
	fmt.Fprintf(w, "Last depth\t%.2f m\n", s.LastDepth)
	if s.Notes != "" {
		fmt.Fprintf(w, "Notes\t%s\n", s.Notes)
	}
	return w.Flush()
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	env, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	s := env.settings
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid assignment %q: want key=value", arg)
		}
		if err := s.Set(key, value); err != nil {
			return err
		}
	}

	cmd.SilenceUsage = true
	if err := s.Save(env.path); err != nil {
		return err
	}
	env.logger.WithField("file", env.path).Info("Settings saved")

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("Saved"), env.path)
	return writeSettingsTable(cmd.OutOrStdout(), s)
}

func runSettingsPreview(cmd *cobra.Command, _ []string) error {
	env, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	stations, err := env.settings.Stations()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "#\tPOSITION\tDEPTH\tLEVEL\tEASTING\tNORTHING\t")
	for _, st := range stations {
		fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			st.Index+1, st.Position, st.Depth, st.Level, st.Easting, st.Northing)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if settingsPreviewOut == "" {
		return nil
	}
	model, err := env.settings.ProfileModel()
	if err != nil {
		return err
	}
	if _, err := writeChart(model, env.cfg.Plot.Width, env.cfg.Plot.Height, settingsPreviewOut, cmd.OutOrStdout()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile written to %s\n", settingsPreviewOut)
	return nil
}
