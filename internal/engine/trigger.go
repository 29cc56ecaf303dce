package engine

import (
	"context"
	"log"
	"strings"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/events"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/internal/storage"
	"github.com/scrypster/loreline/pkg/types"
)

// MacroRefresher is the slice of the macro registry the trigger engine
// drives on conversation switches: re-register variable names and preload
// the value cache for the new chat.
type MacroRefresher interface {
	RefreshVariableMacros(ctx context.Context) error
	Preload(ctx context.Context, chatID string)
}

// TriggerEngine listens to host chat events and decides, per suite, whether
// to enqueue an analysis task. It only ever decides; the queue performs the
// asynchronous work.
type TriggerEngine struct {
	suites     *services.SuiteService
	queue      *AnalysisQueue
	store      storage.StateStore
	transcript chat.Transcript
	macros     MacroRefresher // may be nil
}

// NewTriggerEngine creates a trigger engine. The macros refresher may be
// nil when no host macro registry is attached.
func NewTriggerEngine(suites *services.SuiteService, queue *AnalysisQueue, store storage.StateStore, transcript chat.Transcript, macros MacroRefresher) *TriggerEngine {
	return &TriggerEngine{
		suites:     suites,
		queue:      queue,
		store:      store,
		transcript: transcript,
		macros:     macros,
	}
}

// Attach subscribes the engine to a host event bus and returns the
// unsubscribe handle.
func (e *TriggerEngine) Attach(bus *events.Bus) (unsubscribe func()) {
	return bus.Subscribe(e.Handle)
}

// Handle processes one host event synchronously. Message events are checked
// against every enabled suite's trigger; conversation switches refresh the
// macro registrations and preload the value cache, and never touch the
// interval counters.
func (e *TriggerEngine) Handle(evt events.Event) {
	ctx := context.Background()
	switch evt.Kind {
	case events.MessageSent, events.MessageReceived:
		e.handleMessage(ctx, evt)
	case events.ChatChanged:
		e.handleChatChanged(ctx, evt)
	}
}

func (e *TriggerEngine) handleMessage(ctx context.Context, evt events.Event) {
	if evt.ChatID == "" {
		log.Printf("WARNING: trigger: message event without chat id, ignoring")
		return
	}

	suites, err := e.suites.List(ctx)
	if err != nil {
		log.Printf("trigger: failed to list suites: %v", err)
		return
	}

	for _, suite := range suites {
		if !suite.Enabled {
			continue
		}
		switch suite.Trigger.Type {
		case types.TriggerManual:
			// Never auto-fires.

		case types.TriggerInterval:
			e.checkInterval(ctx, suite, evt.ChatID)

		case types.TriggerKeyword:
			e.checkKeywords(ctx, suite, evt)
		}
	}
}

// checkInterval counts qualifying message events per (suite, chat). When
// the count reaches the configured interval the suite is enqueued and the
// counter resets to 0. Counters are keyed by chat id, so they survive
// conversation switches.
func (e *TriggerEngine) checkInterval(ctx context.Context, suite *types.Suite, chatID string) {
	if suite.Trigger.Interval < 1 {
		return
	}
	count, err := e.store.GetCounter(ctx, suite.ID, chatID)
	if err != nil {
		log.Printf("trigger: failed to read counter for suite %q: %v", suite.Name, err)
		return
	}
	count++
	if count < suite.Trigger.Interval {
		if err := e.store.SetCounter(ctx, suite.ID, chatID, count); err != nil {
			log.Printf("trigger: failed to save counter for suite %q: %v", suite.Name, err)
		}
		return
	}

	if err := e.store.SetCounter(ctx, suite.ID, chatID, 0); err != nil {
		log.Printf("trigger: failed to reset counter for suite %q: %v", suite.Name, err)
	}
	if _, err := e.queue.Enqueue(ctx, suite, types.TriggerInterval); err != nil {
		log.Printf("trigger: failed to enqueue suite %q: %v", suite.Name, err)
	}
}

// checkKeywords searches the triggering message's text case-insensitively
// for any configured keyword. The check is stateless per message; no
// counter is involved.
func (e *TriggerEngine) checkKeywords(ctx context.Context, suite *types.Suite, evt events.Event) {
	floor, ok := e.transcript.Floor(evt.ChatID, evt.Index)
	if !ok {
		log.Printf("WARNING: trigger: message index %d out of range for chat %s", evt.Index, evt.ChatID)
		return
	}
	text := strings.ToLower(floor.Text)
	for _, keyword := range suite.Trigger.Keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(keyword)) {
			if _, err := e.queue.Enqueue(ctx, suite, types.TriggerKeyword); err != nil {
				log.Printf("trigger: failed to enqueue suite %q: %v", suite.Name, err)
			}
			return
		}
	}
}

// handleChatChanged refreshes macro registrations and preloads the value
// cache for the new conversation. State initialization only; counters are
// deliberately left alone.
func (e *TriggerEngine) handleChatChanged(ctx context.Context, evt events.Event) {
	if e.macros == nil {
		return
	}
	if err := e.macros.RefreshVariableMacros(ctx); err != nil {
		log.Printf("trigger: failed to refresh macro registrations: %v", err)
	}
	e.macros.Preload(ctx, evt.ChatID)
}

// TriggerManually enqueues a suite regardless of its trigger configuration.
// This is the path behind the user-facing "analyze now" action.
func (e *TriggerEngine) TriggerManually(ctx context.Context, suiteID string) (*types.QueueTask, error) {
	suite, err := e.suites.Get(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	return e.queue.Enqueue(ctx, suite, types.TriggerManual)
}
