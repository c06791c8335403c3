// Command presbridge exposes serial-attached pressure transducers to TCP
// clients using a line-oriented request/response protocol.
//
// Usage:
//
//	presbridge <config.yaml>
//
// Environment variables:
//
//	LOG_LEVEL - debug, info (default), warn or error
//	ENV       - "development" switches to console log output
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lvmi/presbridge/bridge"
	"github.com/lvmi/presbridge/config"
	"github.com/lvmi/presbridge/device"
	"github.com/lvmi/presbridge/logger"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yaml>\n", os.Args[0])
		os.Exit(2)
	}

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		logger.SetLevel(logger.DebugLevel)
	case "warn":
		logger.SetLevel(logger.WarnLevel)
	case "error":
		logger.SetLevel(logger.ErrorLevel)
	}

	log := logger.GetLogger()

	if err := run(os.Args[1], log); err != nil {
		log.Fatal("bridge terminated", "error", err)
	}
}

func run(configPath string, log logger.Logger) error {
	cfgFile, err := config.Load(configPath)
	if err != nil {
		return err
	}

	deviceCfgs, err := cfgFile.DeviceConfigs()
	if err != nil {
		return err
	}

	registry, err := device.NewRegistry(deviceCfgs...)
	if err != nil {
		return err
	}

	serverCfg, err := cfgFile.ServerConfig(bridge.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := bridge.NewServer(ctx, serverCfg, registry)
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("termination signal received")

	return server.Shutdown()
}
