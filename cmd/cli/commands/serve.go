package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/auth"
	"github.com/voreskerne/frivillig/pkg/clients/gmailclient"
	"github.com/voreskerne/frivillig/pkg/metrics"
	"github.com/voreskerne/frivillig/pkg/notify"
	"github.com/voreskerne/frivillig/pkg/server"
	"github.com/voreskerne/frivillig/pkg/utils"
)

// ServeCmd creates the serve command
func ServeCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Database.RunMigrations(app.Ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			revoker, closeRevoker, err := newRevoker(app)
			if err != nil {
				return err
			}
			defer closeRevoker()

			mailer, err := newMailer(app)
			if err != nil {
				return err
			}

			templates := notify.DefaultTemplates()
			for name, override := range app.Cfg.Mail.Templates {
				templates.Override(name, override.Subject, override.Body)
			}

			srv := server.New(server.Options{
				Store:   app.Database,
				Revoker: revoker,
				Notifier: &notify.TradeNotifier{
					Store:     app.Database,
					Mailer:    mailer,
					Templates: templates,
					SiteName:  app.Cfg.Mail.SiteName,
					Logger:    app.Logger,
				},
				Feed:    &notify.AdminFeed{Store: app.Database, Logger: app.Logger},
				Metrics: metrics.New(),
				Logger:  app.Logger,
				Server:  app.Cfg.Server,
				Points:  app.Cfg.Points,
			})

			return srv.Run(app.Ctx)
		},
	}
}

// newRevoker shares revocations through Redis when an address is configured
func newRevoker(app *AppContext) (auth.Revoker, func(), error) {
	cfg := app.Cfg.Redis
	if cfg.Addr == "" {
		app.Logger.Info("Token revocations kept in memory")
		return auth.NewMemoryRevoker(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(app.Ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	app.Logger.Info("Token revocations kept in redis", zap.String("addr", cfg.Addr))
	return auth.NewRedisRevoker(client), func() { client.Close() }, nil
}

// newMailer sends through Gmail when mail is enabled and only logs otherwise
func newMailer(app *AppContext) (notify.Mailer, error) {
	if !app.Cfg.Mail.Enabled {
		app.Logger.Info("Mail disabled, trade emails will only be logged")
		return &notify.LogMailer{Logger: app.Logger}, nil
	}

	oauthCfg, err := config.LoadMailClient(app.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail client config: %w", err)
	}
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, err
	}
	store, err := utils.DefaultTokenStore(app.Env)
	if err != nil {
		return nil, err
	}

	tokens, err := utils.StoredTokenSource(app.Ctx, oauthConfig, store, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load mail token (run authorizeMail first): %w", err)
	}

	client, err := gmailclient.NewClient(app.Ctx, tokens, app.Cfg.Mail.GmailUserID, app.Cfg.Mail.Sender)
	if err != nil {
		return nil, err
	}

	app.Logger.Info("Sending mail through Gmail", zap.String("user_id", app.Cfg.Mail.GmailUserID))
	return client, nil
}
