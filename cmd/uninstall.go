package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relaysync/internal/autostart"
)

var uninstallRole string

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Unregister a service registered with install",
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := autostart.ParseRole(uninstallRole)
		if err != nil {
			return err
		}

		as := autostart.New(role)
		installed, err := as.IsInstalled()
		if err != nil {
			return err
		}
		if !installed {
			fmt.Printf("relaysync %s is not registered\n", role)
			return nil
		}

		if err := as.Uninstall(); err != nil {
			return err
		}

		fmt.Printf("relaysync %s unregistered from autostart\n", role)
		return nil
	},
}

func init() {
	uninstallCmd.Flags().StringVar(&uninstallRole, "role", string(autostart.RoleWatch), "service to unregister: watch or serve")
	rootCmd.AddCommand(uninstallCmd)
}
