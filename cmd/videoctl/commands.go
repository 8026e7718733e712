package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-video/migrations"
	"github.com/tendant/simple-video/pkg/simplevideo"
)

// NewMigrateCommand applies or rolls back the Postgres schema.
func NewMigrateCommand() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")

	run := func(name string, fn func(string) (bool, error)) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Apply all %s migrations", name),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				url := databaseURL
				if url == "" {
					url = os.Getenv("DATABASE_URL")
				}
				if url == "" {
					return errors.New("database url is required")
				}
				changed, err := fn(url)
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s applied\n", name)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "No change")
				}
				return nil
			},
		}
	}
	cmd.AddCommand(run("up", migrations.Up))
	cmd.AddCommand(run("down", migrations.Down))
	return cmd
}

// NewListCommand prints an owner's gallery.
func NewListCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's videos with download links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := simplevideo.ParseOwnerRef(owner)
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			gallery, err := rt.Service.ListGallery(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), gallery)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner as user:<id>, email:<address> or a bare value")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// NewGetCommand prints one asset.
func NewGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <video-id>",
		Short: "Show a video asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			asset, err := rt.Service.GetAsset(cmd.Context(), args[0], simplevideo.OwnerRef{})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), asset)
		},
	}
}

// NewStatusCommand applies a status transition as if the generator had
// called back.
func NewStatusCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "status <video-id> <processing|ready|failed>",
		Short: "Set a video's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Service.UpdateStatus(cmd.Context(), simplevideo.StatusUpdate{
				VideoID: args[0],
				Status:  args[1],
				Error:   reason,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&reason, "error", "", "failure reason; forces the status to failed")
	return cmd
}

// NewURLCommand mints a download URL for a ready asset.
func NewURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "url <video-id>",
		Short: "Print a time-limited download URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			u, err := rt.Service.GetDownloadURL(cmd.Context(), args[0], simplevideo.OwnerRef{})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
}

// NewDeleteCommand removes the record and its stored object.
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <video-id>",
		Short: "Delete a video and its stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.Service.DeleteAsset(cmd.Context(), simplevideo.DeleteRequest{VideoID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
