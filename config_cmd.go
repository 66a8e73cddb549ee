package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/portal-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configOutput is the JSON schema for `config show --json`.
type configOutput struct {
	ConfigPath     string `json:"config_path"`
	APIHost        string `json:"api_host"`
	Timeout        string `json:"timeout"`
	UserAgent      string `json:"user_agent"`
	StorageBackend string `json:"storage_backend"`
	StoragePath    string `json:"storage_path"`
	MaxUploadSize  int64  `json:"max_upload_size"`
	LogLevel       string `json:"log_level"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil {
		return errors.New("no configuration loaded")
	}

	w := cmd.OutOrStdout()

	if flagJSON {
		r := resolvedCfg

		return printJSON(w, configOutput{
			ConfigPath:     r.ConfigPath,
			APIHost:        r.APIHost,
			Timeout:        r.Timeout.String(),
			UserAgent:      r.UserAgent,
			StorageBackend: r.StorageBackend,
			StoragePath:    r.StoragePath,
			MaxUploadSize:  r.MaxUploadSize,
			LogLevel:       r.LogLevel,
		})
	}

	return config.RenderEffective(resolvedCfg, w)
}
