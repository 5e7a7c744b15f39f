package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/onionsentry/internal/config"
)

//go:embed templates/onionsentry.yaml
var configTemplate embed.FS

// templatePath is the location of the template inside configTemplate.
const templatePath = "templates/onionsentry.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new onionsentry configuration file",
		Long: `Initialize creates a new ` + config.LocalConfigFile + ` configuration file in the current directory.

The generated file lists every option with its default value and a short
explanation. The daemon looks for it in the current directory, then at
` + filepath.Join(config.XDGConfigDir(), config.UserConfigFile) + `.

Examples:
  # Create ` + config.LocalConfigFile + ` in current directory
  onionsentry init

  # Create the per-user configuration
  onionsentry init -o ~/.config/onionsentry/config.yaml

  # Force overwrite existing file
  onionsentry init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.LocalConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold the control password.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to adjust, for example:")
	fmt.Fprintln(out, "  - Tor control port address and authentication")
	fmt.Fprintln(out, "  - Circuit rate thresholds and NEWNYM cooldown")
	fmt.Fprintln(out, "  - Web root and suspicious file extensions")
	return nil
}
