package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kataras/golog"

	"Mirage/client/core"
)

func main() {
	if level := strings.TrimSpace(os.Getenv("MIRAGE_LOG_LEVEL")); level != "" {
		golog.SetLevel(level)
	}
	agent, err := core.NewAgent()
	if err != nil {
		golog.Fatalf("agent init failed: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := agent.Run(); err != nil {
			golog.Errorf("agent stopped: %v", err)
		}
	}()
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	select {
	case <-interrupt:
		golog.Info("shutting down")
		agent.Stop()
		<-done
	case <-done:
	}
}
