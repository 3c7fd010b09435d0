package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/utils"
)

// AuthorizeMailCmd creates the authorizeMail command
func AuthorizeMailCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "authorizeMail",
		Short: "Authorise the Gmail account used to send notification emails",
		Long: `Runs the OAuth consent flow for the mail client in mailClient.<env>.json and
stores the token so serve can send email without user interaction.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			oauthCfg, err := config.LoadMailClient(app.Env)
			if err != nil {
				return fmt.Errorf("failed to load mail client config: %w", err)
			}
			oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
			if err != nil {
				return err
			}
			store, err := utils.DefaultTokenStore(app.Env)
			if err != nil {
				return err
			}

			if _, err := utils.Authorize(app.Ctx, oauthConfig, store, app.Logger); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Mail sender authorised for %s\n", app.Env)
			return nil
		},
	}
}
