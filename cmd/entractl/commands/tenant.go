package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deixis/entractl/internal/directory"
)

func newTenantCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Show the tenant scripts run against",
		Long: `Print the tenant id passed to scripts as ENTRA_TENANT_ID.

Without tenant.id in the config the id is read from an access token of the
configured credential.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			tenant := cfg.Tenant.ID
			if tenant == "" {
				cred, err := directory.NewCredential(cfg)
				if err != nil {
					return err
				}
				if tenant, err = directory.TenantID(cmd.Context(), cred); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tenant)
			return err
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "user <upn>",
		Short: "Look a user up in the directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newResolver(opts)
			if err != nil {
				return err
			}
			u, err := r.LookupUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(u)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "groups <upn>",
		Short: "List the groups a user is a direct member of",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newResolver(opts)
			if err != nil {
				return err
			}
			names, err := r.GroupNames(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, n := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	})

	return cmd
}

func newResolver(opts *globalOptions) (*directory.GraphResolver, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	cred, err := directory.NewCredential(cfg)
	if err != nil {
		return nil, err
	}
	return directory.NewGraphResolver(cred, cfg.RateLimit())
}
