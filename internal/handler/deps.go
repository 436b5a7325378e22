package handler

import (
	"github.com/Tzinov15/messaging-app-backend/internal/app/relay"
	"github.com/Tzinov15/messaging-app-backend/internal/configs"
)

// AppDeps bundles the shared dependencies handed to every handler.
type AppDeps struct {
	Relay  *relay.Relay
	Config *configs.AppConfig
}
