// Package server provides HTTP server initialization and lifecycle
// management for the Loreline Web UI and REST API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/config"
	"github.com/scrypster/loreline/internal/engine"
	"github.com/scrypster/loreline/internal/events"
	"github.com/scrypster/loreline/internal/importer"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/pkg/types"
	"github.com/scrypster/loreline/web/handlers"
)

// Deps bundles the collaborators the HTTP surface exposes.
type Deps struct {
	Variables  *services.VariableService
	Suites     *services.SuiteService
	Queue      *engine.AnalysisQueue
	Trigger    *engine.TriggerEngine
	Analyzer   *engine.Analyzer
	Importer   *importer.Importer
	Transcript *chat.MemoryTranscript
	Bus        *events.Bus
	Macros     handlers.MacroSync // may be nil
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0) and the
// WebSocketHub for wiring queue and analyzer broadcasts.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, *handlers.WebSocketHub) {
	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub(cfg.Server.Port)
	go wsHub.Run()

	// Push queue mutations to connected status UIs.
	deps.Queue.Subscribe(func(tasks []types.QueueTask) {
		wsHub.Broadcast(handlers.QueueUpdateMessage{Type: "queue_update", Tasks: tasks})
	})

	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	variableHandlers := handlers.NewVariableHandlers(deps.Variables, deps.Macros)
	suiteHandlers := handlers.NewSuiteHandlers(deps.Suites, deps.Trigger, deps.Analyzer, deps.Importer)
	queueHandlers := handlers.NewQueueHandlers(deps.Queue, deps.Analyzer)
	chatHandlers := handlers.NewChatHandlers(deps.Transcript, deps.Bus)

	apiMux := http.NewServeMux()

	// Host chat simulation routes
	apiMux.HandleFunc("/api/chats/{id}", chatHandlers.GetTranscript)
	apiMux.HandleFunc("/api/chats/{id}/messages", chatHandlers.PostMessage)
	apiMux.HandleFunc("/api/chats/{id}/activate", chatHandlers.Activate)

	// Variable definition and value routes
	apiMux.HandleFunc("/api/variables", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			variableHandlers.ListVariables(w, r)
		case http.MethodPost:
			variableHandlers.CreateVariable(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/variables/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			variableHandlers.RenameVariable(w, r)
		case http.MethodDelete:
			variableHandlers.DeleteVariable(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/variables/{id}/value", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			variableHandlers.GetValue(w, r)
		case http.MethodPost:
			variableHandlers.SetValue(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/variables/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			variableHandlers.AddEntry(w, r)
		case http.MethodPatch:
			variableHandlers.UpdateEntry(w, r)
		case http.MethodDelete:
			variableHandlers.DeleteEntry(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/variables/{id}/entries/toggle", variableHandlers.ToggleEntry)
	apiMux.HandleFunc("/api/variables/{id}/entries/reorder", variableHandlers.ReorderEntries)
	apiMux.HandleFunc("/api/variables/{id}/history/navigate", variableHandlers.NavigateHistory)
	apiMux.HandleFunc("/api/variables/{id}/history/apply", variableHandlers.ApplyHistory)

	// Suite registry routes
	apiMux.HandleFunc("/api/suites", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			suiteHandlers.ListSuites(w, r)
		case http.MethodPost:
			suiteHandlers.CreateSuite(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/suites/import", suiteHandlers.Import)
	apiMux.HandleFunc("/api/suites/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			suiteHandlers.GetSuite(w, r)
		case http.MethodDelete:
			suiteHandlers.DeleteSuite(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/suites/{id}/trigger", suiteHandlers.SetTrigger)
	apiMux.HandleFunc("/api/suites/{id}/items", suiteHandlers.AddItem)
	apiMux.HandleFunc("/api/suites/{id}/items/reorder", suiteHandlers.ReorderItems)
	apiMux.HandleFunc("/api/suites/{id}/items/{itemID}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			suiteHandlers.RemoveItem(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/suites/{id}/analyze", suiteHandlers.Analyze)
	apiMux.HandleFunc("/api/suites/{id}/reapply", suiteHandlers.Reapply)
	apiMux.HandleFunc("/api/suites/{id}/last-run", suiteHandlers.LastRun)
	apiMux.HandleFunc("/api/suites/{id}/export", suiteHandlers.Export)

	// Queue routes
	apiMux.HandleFunc("/api/queue", queueHandlers.GetQueue)
	apiMux.HandleFunc("/api/queue/{id}/pause", queueHandlers.PauseTask)
	apiMux.HandleFunc("/api/queue/{id}/resume", queueHandlers.ResumeTask)
	apiMux.HandleFunc("/api/queue/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			queueHandlers.RemoveTask(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/queue/suite/{id}", queueHandlers.AbortSuite)

	// Health endpoint, no auth required, used by monitoring
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	// Wrap API routes with auth middleware
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", wsHub)

	// Wrap entire server with rate limiting, then security headers
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub
}
