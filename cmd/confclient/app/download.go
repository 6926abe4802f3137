package app

import (
	"github.com/spf13/cobra"

	"github.com/stacklok/globalconf-client/internal/config"
	pkgsync "github.com/stacklok/globalconf-client/internal/sync"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <anchor-file> <configuration-path>",
		Short: "Download global configuration once",
		Long: `Download the global configuration named by the anchor into the configuration path.

Instance directories of partners that are no longer allowed are kept. The process exits with
the diagnostics code of the run, 0 on success.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.New(args[0], args[1], config.NewEnvironment())
			if err := applyDownloadFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			_, runErr := runOnce(cmd.Context(), cfg, pkgsync.WithDirectoryCleanup(false))
			return runError(runErr)
		},
	}
	addDownloadFlags(cmd)
	return cmd
}

// addDownloadFlags registers the flags shared by the one-shot commands
func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().String("allowed-federations", "", `Partner instances to download: comma-separated list, "all" or "none"`)
	cmd.Flags().String("read-timeout", "", "Read timeout of configuration downloads (e.g. 30s)")
}

func applyDownloadFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("allowed-federations") {
		allowed, err := cmd.Flags().GetString("allowed-federations")
		if err != nil {
			return err
		}
		cfg.AllowedFederations = allowed
	}
	readTimeout, err := cmd.Flags().GetString("read-timeout")
	if err != nil {
		return err
	}
	if readTimeout != "" {
		cfg.Download.ReadTimeout = readTimeout
	}
	return nil
}
