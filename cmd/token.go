package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/adapters/credential"
)

var tokenFlags struct {
	userID string
	roomID string
	name   string
	role   string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development room credential signed with CREDENTIAL_DEV_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := env.ParseAs[config.CredentialConfig]()
		if err != nil {
			return fmt.Errorf("parse env: %w", err)
		}

		if cfg.DevSecret == "" {
			return fmt.Errorf("CREDENTIAL_DEV_SECRET is not set")
		}

		role, ok := domain.ParseRole(tokenFlags.role)
		if !ok {
			return fmt.Errorf("unknown role %q", tokenFlags.role)
		}

		local := credential.NewLocalService(credential.NewIssuer(cfg.DevSecret, cfg.DevServerURL, cfg.TTL))
		local.SetProfile(tokenFlags.userID, credential.Profile{Name: tokenFlags.name, Role: role})

		cred, err := local.RequestCredential(cmd.Context(), tokenFlags.userID, tokenFlags.roomID)
		if err != nil {
			return fmt.Errorf("issue credential: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(cred)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.userID, "user", "", "user id")
	tokenCmd.Flags().StringVar(&tokenFlags.roomID, "room", "", "room id")
	tokenCmd.Flags().StringVar(&tokenFlags.name, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenFlags.role, "role", string(domain.RoleStudent), "professor, student or admin")

	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("room")

	rootCmd.AddCommand(tokenCmd)
}
