package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newFoldersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage sync folder mappings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sync folders for the current bucket",
			RunE: func(cmd *cobra.Command, args []string) error {
				folders, err := app.GetSyncFolders(cmd.Context())
				if err != nil {
					return err
				}
				if len(folders) == 0 {
					fmt.Println("No sync folders configured")
					return nil
				}
				for _, f := range folders {
					state := "enabled"
					if !f.Enabled {
						state = "disabled"
					}
					fmt.Printf("%4d  %-8s  %s -> %s\n", f.ID, state, f.LocalPath, f.RemotePath)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <local-path> <remote-path>",
			Short: "Add an upload-only sync folder",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := app.AddSyncFolder(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("Added sync folder %d\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Remove a sync folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid folder id: %s", args[0])
				}
				return app.RemoveSyncFolder(cmd.Context(), id)
			},
		},
		&cobra.Command{
			Use:   "enable <id>",
			Short: "Enable a sync folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid folder id: %s", args[0])
				}
				return app.ToggleSyncFolder(cmd.Context(), id, true)
			},
		},
		&cobra.Command{
			Use:   "disable <id>",
			Short: "Disable a sync folder",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid folder id: %s", args[0])
				}
				return app.ToggleSyncFolder(cmd.Context(), id, false)
			},
		},
	)

	return cmd
}

func newSettingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write application settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print a setting value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, err := app.GetSetting(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Println(value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a setting value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.SetSetting(cmd.Context(), args[0], args[1])
			},
		},
	)

	return cmd
}
