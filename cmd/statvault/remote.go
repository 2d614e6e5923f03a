package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/client"
)

func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("endpoint", client.DefaultEndpoint, "statvault server address")
	cmd.Flags().String("api-key", "", "bearer token sent to the server")
}

func remoteClient(cmd *cobra.Command) (*client.Client, error) {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	apiKey, _ := cmd.Flags().GetString("api-key")
	return client.New(client.Config{Endpoint: endpoint, APIKey: apiKey})
}

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <file.json>",
		Short: "Archive a JSON dataset on a running server",
		Long: "Send a JSON file to a statvault server. The data type defaults to the " +
			"file name without its extension.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var data any
			if err := json.Unmarshal(raw, &data); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			dataType, _ := cmd.Flags().GetString("type")
			if dataType == "" {
				dataType = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			tags, _ := cmd.Flags().GetStringSlice("tag")
			opts := archive.Options{Tags: tags}
			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				compress := false
				opts.Compress = &compress
			}

			c, err := remoteClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Archive(cmd.Context(), dataType, data, opts)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d bytes (ratio %.2f)\n",
				res.ArchiveID, res.OriginalSize, res.ArchivedSize, res.CompressionRatio)
			return err
		},
	}
	cmd.Flags().String("type", "", "data type of the dataset")
	cmd.Flags().StringSlice("tag", nil, "extra tag (repeatable)")
	cmd.Flags().Bool("raw", false, "store the data without compression")
	addRemoteFlags(cmd)
	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <archive-id>",
		Short: "Restore an archive from a running server and print its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			skip, _ := cmd.Flags().GetBool("skip-checksum")
			c, err := remoteClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Restore(cmd.Context(), args[0], archive.RestoreOptions{SkipChecksum: skip})
			if err != nil {
				return err
			}
			if res.ChecksumVerified && !res.ChecksumMatch {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: checksum mismatch")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Data)
		},
	}
	cmd.Flags().Bool("skip-checksum", false, "skip checksum verification")
	addRemoteFlags(cmd)
	return cmd
}
