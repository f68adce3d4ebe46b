package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"relaysync/internal/autostart"
)

var installRole string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register watch or serve as a service started on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := autostart.ParseRole(installRole)
		if err != nil {
			return err
		}

		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		var extra []string
		if configFile != "" {
			abs, err := filepath.Abs(configFile)
			if err != nil {
				return fmt.Errorf("invalid config path: %w", err)
			}
			extra = append(extra, "--config", abs)
		}

		as := autostart.New(role)
		if err := as.Install(execPath, extra); err != nil {
			return err
		}

		fmt.Printf("relaysync %s registered for autostart\n", role)
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installRole, "role", string(autostart.RoleWatch), "service to register: watch or serve")
	rootCmd.AddCommand(installCmd)
}
