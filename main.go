package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/det-frontend/printer-module/adapter"
	"github.com/det-frontend/printer-module/bridge"
	"github.com/det-frontend/printer-module/server"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Environment variables override the optional config file.
	viper.AutomaticEnv()
	viper.SetConfigName("printer-module")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/printer-module")
	viper.SetDefault("SERVER_ADDRESS", ":9100")
	viper.SetDefault("SERIAL_PATH", "/dev/ttyUSB0")
	viper.SetDefault("SERIAL_BAUD", 9600)
	viper.SetDefault("AUTO_OPEN", true)
	viper.SetDefault("PROBE_INTERVAL", 5*time.Second)
	viper.SetDefault("AUTH_TOKEN", "")
	viper.SetDefault("MAX_PAYLOAD", bridge.DefaultMaxPayload)
	viper.SetDefault("LOG_LEVEL", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			logger.WithError(err).Fatal("failed to read config file")
		}
	} else {
		logger.Infof("loaded config from %s", viper.ConfigFileUsed())
	}

	level, err := logrus.ParseLevel(viper.GetString("LOG_LEVEL"))
	if err != nil {
		logger.WithError(err).Fatal("invalid LOG_LEVEL")
	}
	logger.SetLevel(level)

	path := viper.GetString("SERIAL_PATH")
	baud := viper.GetInt("SERIAL_BAUD")
	address := viper.GetString("SERVER_ADDRESS")
	logger.Infof("printer %s @ %d, server on %s", path, baud, address)

	link := adapter.NewSerialAdapter(logger)
	dispatcher := bridge.New(link, bridge.Config{
		DefaultPath: path,
		DefaultBaud: baud,
		MaxPayload:  viper.GetInt("MAX_PAYLOAD"),
	}, logger)

	var prober *adapter.Prober
	if viper.GetBool("AUTO_OPEN") {
		prober = adapter.NewProber(link, path, baud, viper.GetDuration("PROBE_INTERVAL"), logger)
		prober.Start()
	}

	svr := server.New(dispatcher, address, viper.GetString("AUTH_TOKEN"), logger)
	if err := svr.StartAsync(); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infof("received %s, shutting down", sig)

	if prober != nil {
		prober.Stop()
	}
	if err := svr.Stop(); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}
}
