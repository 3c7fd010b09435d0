package commands

import (
	"context"

	"go.uber.org/zap"

	"github.com/voreskerne/frivillig/internal/config"
	"github.com/voreskerne/frivillig/pkg/db"
)

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Env      string
	Cfg      *config.Config
	Database db.Database
	Logger   *zap.Logger
	Ctx      context.Context
}
