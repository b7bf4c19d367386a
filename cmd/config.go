package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/udptrain/internal/config"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Load the config file (if any), apply UDPTRAIN_* environment overrides
and defaults, validate, and print the result.

Examples:
  udptrain config
  UDPTRAIN_RECEIVER_ROUNDS=3 udptrain config -c udptrain.yml`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(root)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(map[string]*config.Config{"udptrain": cfg})
		},
	}
}
