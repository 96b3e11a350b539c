package main

import (
	"github.com/atlaskb/backend/internal/server"
	"github.com/atlaskb/backend/internal/util"
	"github.com/atlaskb/backend/pkg/logger"
	"github.com/atlaskb/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
