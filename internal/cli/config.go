package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/querycache/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect pantryctl configuration",
	}
	cmd.AddCommand(newConfigViewCmd(a), newConfigPathCmd(a))
	return cmd
}

func newConfigViewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch strings.ToLower(strings.TrimSpace(a.output)) {
			case "", "table", "yaml":
				v, err := a.cfg.ToYAML()
				if err != nil {
					return err
				}
				fmt.Fprint(a.stdout, v)
				return nil
			case "json":
				cp := *a.cfg
				if cp.API.Token != "" {
					cp.API.Token = "***"
				}
				b, err := json.MarshalIndent(cp, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(b))
				return nil
			default:
				return fmt.Errorf("unsupported --output %q (supported: table, yaml, json)", a.output)
			}
		},
	}
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.cfgPath
			if p == "" {
				var err error
				if p, err = config.FilePath(); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.stdout, p)
			return nil
		},
	}
}
