package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stacklok/globalconf-client/internal/config"
	"github.com/stacklok/globalconf-client/internal/download"
	"github.com/stacklok/globalconf-client/internal/globalconf"
	"github.com/stacklok/globalconf-client/internal/status"
	pkgsync "github.com/stacklok/globalconf-client/internal/sync"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <anchor-file>",
		Short: "Check that the configuration named by an anchor can be downloaded",
		Long: `Download the configuration named by the anchor without writing it anywhere and check
its content. Exit codes:

  0    configuration is valid
  118  anchor points to a source that serves private parameters (--verify-anchor-for-external-source)
  121  private parameters are missing (--verify-private-params-exists)
  other diagnostics codes when the download fails`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
	cmd.Flags().Bool("verify-private-params-exists", false, "Require private parameters in the configuration")
	cmd.Flags().Bool("verify-anchor-for-external-source", false,
		"Require shared parameters only, as served by an external source")
	cmd.MarkFlagsMutuallyExclusive("verify-private-params-exists", "verify-anchor-for-external-source")
	addDownloadFlags(cmd)
	return cmd
}

func validationMode(cmd *cobra.Command) (pkgsync.ValidationMode, error) {
	private, err := cmd.Flags().GetBool("verify-private-params-exists")
	if err != nil {
		return "", err
	}
	external, err := cmd.Flags().GetBool("verify-anchor-for-external-source")
	if err != nil {
		return "", err
	}
	switch {
	case private:
		return pkgsync.ValidatePrivateParams, nil
	case external:
		return pkgsync.ValidateExternalSource, nil
	}
	return pkgsync.ValidateAny, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	mode, err := validationMode(cmd)
	if err != nil {
		return err
	}

	// nothing is persisted, the directory only holds the run lock
	workDir, err := os.MkdirTemp("", "confclient-validate-")
	if err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			slog.Warn("Failed to remove working directory", "path", workDir, "error", err)
		}
	}()

	cfg := config.New(args[0], workDir, config.NewEnvironment())
	if err := applyDownloadFlags(cmd, cfg); err != nil {
		return err
	}

	validator := pkgsync.NewValidator(mode)
	_, runErr := runOnce(cmd.Context(), cfg,
		pkgsync.WithPersist(false),
		pkgsync.WithDirectoryCleanup(false),
		pkgsync.WithSaveInstanceIdentifier(false),
		pkgsync.WithDownloadOptions(download.WithContentObserver(validator.Observe)),
	)

	code := validator.ExitCode(runErr)
	if code == globalconf.ErrorCodeOK {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
		return err
	}
	if runErr != nil {
		return runError(runErr)
	}
	return &ExitError{
		Code: code,
		Err:  fmt.Errorf("configuration is not valid for mode %s: %s", mode, status.Describe(code)),
	}
}
