package main

import (
	"github.com/spf13/cobra"
)

var attributesCmd = &cobra.Command{
	Use:   "attributes",
	Short: "List the tenant's user attributes",
	Long: `Lists the base, extended and user-flow attribute IDs known for the
tenant. Custom extension attributes appear as
extension_<b2c extensions app id>_<name>.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := userService(cmd)
		if err != nil {
			return err
		}
		return printJSON(users.Attributes())
	},
}
