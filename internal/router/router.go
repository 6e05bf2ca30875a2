package router

import (
	"vdisphere/internal/handler"
	"vdisphere/pkg/jwt"
	"vdisphere/pkg/log"

	"github.com/spf13/viper"
)

type RouterDeps struct {
	Logger           *log.Logger
	Config           *viper.Viper
	JWT              *jwt.JWT
	UserHandler      *handler.UserHandler
	AccessHandler    *handler.AccessHandler
	AgentHandler     *handler.AgentHandler
	ProviderHandler  *handler.ProviderHandler
	PoolHandler      *handler.PoolHandler
	MetaPoolHandler  *handler.MetaPoolHandler
	TransportHandler *handler.TransportHandler
	InstanceHandler  *handler.InstanceHandler
}
