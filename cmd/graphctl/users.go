package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/entraops/azuregraph/pkg/b2c"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage Azure AD B2C user accounts",
}

var (
	listMax     int
	listInclude []string

	getAttrs []string

	createFile string
	updateFile string

	deleteYes bool

	resetPassword string
)

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local B2C accounts",
	Long: `Lists local accounts (creationType eq 'LocalAccount'), paged per 999
users. Use --include to add user-flow attributes by display name on top of
the default attribute set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := userService(cmd)
		if err != nil {
			return err
		}

		accounts, err := users.List(cmd.Context(), b2c.ListOptions{
			Max:               listMax,
			IncludeAttributes: listInclude,
		})
		if err != nil {
			return err
		}
		return printJSON(accounts)
	},
}

var usersSearchCmd = &cobra.Command{
	Use:   "search <email>",
	Short: "Find a user by sign-in email address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := userService(cmd)
		if err != nil {
			return err
		}

		results, err := users.Search(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

var usersGetCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "Fetch a full user profile",
	Long: `Fetches a user profile rebuilt from the tenant's user-flow attribute
mapping. Attributes without a value are reported as null.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := userService(cmd)
		if err != nil {
			return err
		}

		var attrs []string
		if len(getAttrs) > 0 {
			attrs = getAttrs
		}
		profile, err := users.Profile(cmd.Context(), args[0], attrs)
		if err != nil {
			return err
		}
		return printJSON(profile)
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a local B2C account",
	Long: `Creates a local account from a JSON document with email, password,
displayName (optional) and attributes keyed by user-flow display name:

  {
    "email": "jane@example.com",
    "password": "...",
    "attributes": {"givenName": "Jane", "surname": "Doe"}
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc struct {
			Email       string         `json:"email"`
			Password    string         `json:"password"`
			DisplayName string         `json:"displayName"`
			Attributes  map[string]any `json:"attributes"`
		}
		if err := readJSONFile(createFile, &doc); err != nil {
			return err
		}

		users, err := userService(cmd)
		if err != nil {
			return err
		}

		created, err := users.Create(cmd.Context(), b2c.NewUser{
			Email:       doc.Email,
			Password:    doc.Password,
			DisplayName: doc.DisplayName,
			Attributes:  doc.Attributes,
		})
		if err != nil {
			return err
		}
		return printJSON(created)
	},
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <user-id>",
	Short: "Update user-flow attributes on an account",
	Long: `Patches the given attributes; everything else remains unchanged. Graph
answers 204, so re-fetch the profile to see the updated object.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields map[string]any
		if err := readJSONFile(updateFile, &fields); err != nil {
			return err
		}

		users, err := userService(cmd)
		if err != nil {
			return err
		}

		if err := users.Update(cmd.Context(), args[0], fields); err != nil {
			return err
		}
		fmt.Println("updated")
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteYes {
			ok, err := confirm(fmt.Sprintf("Delete user %s? [y/N] ", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("aborted")
				return nil
			}
		}

		users, err := userService(cmd)
		if err != nil {
			return err
		}

		if err := users.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil
	},
}

var usersResetPasswordCmd = &cobra.Command{
	Use:   "reset-password <user-id>",
	Short: "Set a new password for an account",
	Long: `Sets a new password without forcing a change on next sign-in. The app
registration needs the User Administrator role for this operation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := resetPassword
		if password == "" {
			var err error
			password, err = promptPassword("New password: ")
			if err != nil {
				return err
			}
		}

		users, err := userService(cmd)
		if err != nil {
			return err
		}

		if err := users.ChangePassword(cmd.Context(), args[0], password); err != nil {
			return err
		}
		fmt.Println("password changed")
		return nil
	},
}

// userService builds the runtime and the B2C user service.
func userService(cmd *cobra.Command) (*b2c.Service, error) {
	rt, err := getRuntime(cmd.Context())
	if err != nil {
		return nil, err
	}
	return rt.Users(cmd.Context())
}

// readJSONFile decodes a JSON document from path, or stdin for "-".
func readJSONFile(path string, out any) error {
	if path == "" {
		return fmt.Errorf("--file is required")
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = os.ReadFile("/dev/stdin")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// confirm asks a yes/no question on stdin.
func confirm(question string) (bool, error) {
	fmt.Print(question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// promptPassword reads a password without echoing it.
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	return string(raw), nil
}

func init() {
	usersListCmd.Flags().IntVar(&listMax, "max", 0, "maximum accounts to fetch (0 fetches all, up to 999 otherwise)")
	usersListCmd.Flags().StringSliceVar(&listInclude, "include", nil, "extra user-flow attributes to select, by display name")

	usersGetCmd.Flags().StringSliceVar(&getAttrs, "attrs", nil, "attributes to select (defaults to all known attributes)")

	usersCreateCmd.Flags().StringVar(&createFile, "file", "", "JSON document describing the account (- for stdin)")
	usersUpdateCmd.Flags().StringVar(&updateFile, "file", "", "JSON document with attributes to patch (- for stdin)")

	usersDeleteCmd.Flags().BoolVar(&deleteYes, "yes", false, "skip the confirmation prompt")

	usersResetPasswordCmd.Flags().StringVar(&resetPassword, "password", "", "new password (prompted when omitted)")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersSearchCmd)
	usersCmd.AddCommand(usersGetCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersUpdateCmd)
	usersCmd.AddCommand(usersDeleteCmd)
	usersCmd.AddCommand(usersResetPasswordCmd)
}
