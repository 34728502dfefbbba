package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the local client identity",
	Long: `The client derives a stable identity from device characteristics and
sends it with every request so the service can scope conversations to
this machine. The derived value is cached locally; clearing it forces a
fresh derivation on the next request.`,
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the client identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		id, err := identityProvider(cfg).Get(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var identityClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the cached client identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := identityProvider(cfg).Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Cleared cached identity.")
		return nil
	},
}

func init() {
	identityCmd.AddCommand(identityShowCmd)
	identityCmd.AddCommand(identityClearCmd)
}
