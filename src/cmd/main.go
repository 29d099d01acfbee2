package main

import (
	cfg "gallery/src/configuration"
	server "gallery/src/server"
)

func main() {
	config := cfg.ReadProperties()
	config.SetupLogger()
	server.RunServer(config)
}
