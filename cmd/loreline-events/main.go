// loreline-events tails analysis completion events written by the web
// process. Host integrations that cannot hold a websocket open can run
// this binary and react to its output.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrypster/loreline/internal/config"
	"github.com/scrypster/loreline/internal/notify"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, func(evt notify.Event) {
		log.Printf("analysis %s: suite=%s chat=%s", evt.Type, evt.SuiteID, evt.ChatID)
	})
	if err := watcher.Start(); err != nil {
		log.Fatalf("Failed to start event watcher: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	watcher.Stop()
}
