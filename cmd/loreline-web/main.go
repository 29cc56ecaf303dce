package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/config"
	"github.com/scrypster/loreline/internal/engine"
	"github.com/scrypster/loreline/internal/events"
	"github.com/scrypster/loreline/internal/importer"
	"github.com/scrypster/loreline/internal/llm"
	"github.com/scrypster/loreline/internal/macros"
	"github.com/scrypster/loreline/internal/notify"
	"github.com/scrypster/loreline/internal/resolver"
	"github.com/scrypster/loreline/internal/server"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/internal/storage/postgres"
	"github.com/scrypster/loreline/internal/storage/sqlite"
	"github.com/scrypster/loreline/pkg/types"
	"github.com/scrypster/loreline/web/handlers"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Domain services on top of the store.
	suiteService := services.NewSuiteService(store)
	variableService := services.NewVariableService(store, suiteService)

	// The transcript stands in for the host chat application; message
	// traffic reaches it through the event bus wiring below.
	transcript := chat.NewMemoryTranscript()
	bus := events.NewBus()

	res := resolver.New(variableService, suiteService, transcript)

	macroRegistry, err := macros.NewRegistry(variableService, transcript, res)
	if err != nil {
		log.Fatalf("Failed to initialize macro registry: %v", err)
	}
	if err := macroRegistry.RefreshVariableMacros(ctx); err != nil {
		log.Printf("WARNING: failed to register variable macros: %v", err)
	}

	model := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})

	analyzer := engine.NewAnalyzer(res, suiteService, variableService, model, transcript, cfg.Features.AutoAssign)
	analyzer.SetMacroReloader(macroRegistry)
	queue := engine.NewAnalysisQueue(analyzer, transcript, suiteService)
	trigger := engine.NewTriggerEngine(suiteService, queue, store, transcript, macroRegistry)
	unsubscribe := trigger.Attach(bus)
	defer unsubscribe()

	if err := suiteService.SetGlobalSnapshotMode(ctx, cfg.Features.SnapshotMode); err != nil {
		log.Printf("WARNING: failed to persist snapshot-mode default: %v", err)
	}

	imp := importer.New(suiteService, variableService)

	addr, wsHub := server.Start(ctx, cfg, server.Deps{
		Variables:  variableService,
		Suites:     suiteService,
		Queue:      queue,
		Trigger:    trigger,
		Analyzer:   analyzer,
		Importer:   imp,
		Transcript: transcript,
		Bus:        bus,
		Macros:     macroRegistry,
	})
	log.Printf("Loreline Web UI running at http://%s", addr)

	// Finished runs go out over the websocket, and as event files when
	// cross-process notification is on.
	var writer *notify.EventWriter
	if cfg.Features.NotifyEnabled {
		writer = notify.NewEventWriter(cfg.Storage.DataPath)
	}
	analyzer.SetOnComplete(func(task types.QueueTask, state engine.AnalyzerState) {
		wsHub.Broadcast(handlers.AnalysisDoneMessage{
			Type:    "analysis_done",
			SuiteID: task.SuiteID,
			State:   string(state),
		})
		if writer != nil {
			if err := writer.Notify(string(state), task.SuiteID, task.ChatIDSnapshot); err != nil {
				log.Printf("WARNING: failed to write analysis event: %v", err)
			}
		}
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore selects the storage backend from configuration.
func openStore(cfg *config.Config) (storage.StateStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStateStore(cfg.Storage.PostgresURL)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, err
		}
		return sqlite.NewStateStore(cfg.Storage.DataPath + "/loreline.db")
	}
}
