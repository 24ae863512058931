package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-shutdown
		logger.WithField("signal", sig).Info("run canceled")
		cancel()
	}()

	if err := newRootCmd(logger).ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("caught error in main function")
		os.Exit(1)
	}
}
