package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/llm"
	"github.com/scrypster/loreline/internal/resolver"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/pkg/types"
)

// AnalyzerState is the lifecycle state of the analyzer.
type AnalyzerState string

const (
	StateIdle      AnalyzerState = "idle"
	StateAnalyzing AnalyzerState = "analyzing"
	StateSuccess   AnalyzerState = "success"
	StateAborted   AnalyzerState = "aborted"
	StateFailed    AnalyzerState = "failed"
)

// ErrAnalysisInProgress is returned when a run is requested while another
// is active on the same analyzer.
var ErrAnalysisInProgress = errors.New("analysis already in progress")

// ErrNoVariables is returned when a suite has no enabled variable items, so
// there is nothing to ask the model for.
var ErrNoVariables = errors.New("suite has no enabled variables")

// RunRecord captures the outcome of one analysis run so a previously
// received (possibly user-edited) response can be re-parsed and re-assigned
// without calling the model again.
type RunRecord struct {
	SuiteID    string    `json:"suite_id"`
	ChatID     string    `json:"chat_id"`
	FloorRange string    `json:"floor_range"`
	Response   string    `json:"response"`
	FinishedAt time.Time `json:"finished_at"`
}

// CompletionFunc is invoked after every run with the task and its terminal
// state.
type CompletionFunc func(task types.QueueTask, state AnalyzerState)

// MacroReloader is the slice of the macro registry the analyzer drives:
// refresh a cached value after an assignment writes its variable.
type MacroReloader interface {
	Reload(ctx context.Context, variableID, chatID string)
}

// Analyzer orchestrates one end-to-end analysis: resolve the suite's prompt,
// append tag instructions, call the model, parse the tagged response, and
// assign the results to variables.
type Analyzer struct {
	res        *resolver.Resolver
	suites     *services.SuiteService
	vars       *services.VariableService
	model      llm.ModelCaller
	transcript chat.Transcript
	autoAssign bool

	mu       sync.Mutex
	running  bool
	state    AnalyzerState
	lastRuns map[string]*RunRecord // keyed by suite id

	onComplete CompletionFunc
	macros     MacroReloader // may be nil
}

// NewAnalyzer creates an analyzer over the given collaborators. When
// autoAssign is true, parsed results are written to the variable store at
// the end of each successful run.
func NewAnalyzer(res *resolver.Resolver, suites *services.SuiteService, vars *services.VariableService, model llm.ModelCaller, transcript chat.Transcript, autoAssign bool) *Analyzer {
	return &Analyzer{
		res:        res,
		suites:     suites,
		vars:       vars,
		model:      model,
		transcript: transcript,
		autoAssign: autoAssign,
		state:      StateIdle,
		lastRuns:   make(map[string]*RunRecord),
	}
}

// SetOnComplete registers a callback fired after every run with its
// terminal state. Used for status push and cross-process notification.
func (a *Analyzer) SetOnComplete(fn CompletionFunc) {
	a.mu.Lock()
	a.onComplete = fn
	a.mu.Unlock()
}

// SetMacroReloader attaches the host macro registry so assignments replace
// stale cached values as soon as they are written.
func (a *Analyzer) SetMacroReloader(m MacroReloader) {
	a.mu.Lock()
	a.macros = m
	a.mu.Unlock()
}

// State returns the analyzer's current state. Terminal states persist until
// the next run starts.
func (a *Analyzer) State() AnalyzerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return StateAnalyzing
	}
	return a.state
}

// LastRun returns the record of the most recent run for a suite, or nil.
func (a *Analyzer) LastRun(suiteID string) *RunRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec, ok := a.lastRuns[suiteID]; ok {
		cp := *rec
		return &cp
	}
	return nil
}

// Run executes one analysis task end to end. Cancellation of ctx surfaces
// as context.Canceled and is recorded as aborted, not failed.
func (a *Analyzer) Run(ctx context.Context, task *types.QueueTask) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAnalysisInProgress
	}
	a.running = true
	a.mu.Unlock()

	err := a.run(ctx, task)

	terminal := StateSuccess
	switch {
	case errors.Is(err, context.Canceled):
		terminal = StateAborted
	case err != nil:
		terminal = StateFailed
	}

	a.mu.Lock()
	a.running = false
	a.state = terminal
	fn := a.onComplete
	a.mu.Unlock()

	if fn != nil {
		fn(*task, terminal)
	}
	return err
}

func (a *Analyzer) run(ctx context.Context, task *types.QueueTask) error {
	chatID := task.ChatIDSnapshot

	// Snapshot mode: compute the floor range against the chat length
	// recorded at enqueue time; live mode uses the length right now.
	chatLength := task.ChatLengthSnapshot
	if !task.SnapshotMode {
		chatLength = a.transcript.Length(chatID)
	}

	resolution, err := a.res.ResolveSuite(ctx, task.SuiteID, chatID, chatLength)
	if err != nil {
		return fmt.Errorf("resolve suite %s: %w", task.SuiteID, err)
	}

	enabledVars, err := a.enabledVariables(ctx, task.SuiteID)
	if err != nil {
		return err
	}

	instructions := llm.GenerateTagInstructions(enabledVars)
	prompt := resolution.Prompt + "\n\n" + instructions

	text, err := a.model.Generate(ctx, []types.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("model call: %w", err)
	}

	a.mu.Lock()
	a.lastRuns[task.SuiteID] = &RunRecord{
		SuiteID:    task.SuiteID,
		ChatID:     chatID,
		FloorRange: resolution.FloorRange,
		Response:   text,
		FinishedAt: time.Now().UTC(),
	}
	a.mu.Unlock()

	results := llm.ParseTags(text, enabledVars)
	if missing := llm.CheckCompleteness(results, enabledVars); len(missing) > 0 {
		log.Printf("WARNING: analyzer: suite %q response missing tags %v", task.SuiteName, missing)
	}

	if a.autoAssign {
		a.AssignResults(ctx, chatID, resolution.FloorRange, results)
	}
	return nil
}

// ReapplyResponse re-parses and re-assigns a previously received (possibly
// user-edited) response without calling the model again. The floor range
// captured during the original run is reused.
func (a *Analyzer) ReapplyResponse(ctx context.Context, suiteID, response string) error {
	a.mu.Lock()
	rec, ok := a.lastRuns[suiteID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("no recorded run for suite %s", suiteID)
	}

	enabledVars, err := a.enabledVariables(ctx, suiteID)
	if err != nil {
		return err
	}

	results := llm.ParseTags(response, enabledVars)
	if missing := llm.CheckCompleteness(results, enabledVars); len(missing) > 0 {
		log.Printf("WARNING: analyzer: reapplied response missing tags %v", missing)
	}

	a.mu.Lock()
	rec.Response = response
	a.mu.Unlock()

	a.AssignResults(ctx, rec.ChatID, rec.FloorRange, results)
	return nil
}

// AssignResults writes parsed results to the variable store: stack
// variables get a new entry, replace variables a new current value. A
// failure on one variable is logged and does not stop assignment of the
// remaining ones.
func (a *Analyzer) AssignResults(ctx context.Context, chatID, floorRange string, results []types.TagResult) {
	a.mu.Lock()
	macros := a.macros
	a.mu.Unlock()

	for _, result := range results {
		def, err := a.vars.GetByTag(ctx, result.Tag)
		if err != nil {
			log.Printf("WARNING: analyzer: no variable for tag %q, skipping: %v", result.Tag, err)
			continue
		}
		switch def.Mode {
		case types.ModeStack:
			if _, err := a.vars.AddEntry(ctx, def.ID, chatID, result.Content, floorRange); err != nil {
				log.Printf("WARNING: analyzer: failed to add entry for %q: %v", def.Name, err)
				continue
			}
		case types.ModeReplace:
			if err := a.vars.SetValue(ctx, def.ID, chatID, result.Content, floorRange); err != nil {
				log.Printf("WARNING: analyzer: failed to set value for %q: %v", def.Name, err)
				continue
			}
		}
		if macros != nil {
			macros.Reload(ctx, def.ID, chatID)
		}
	}
}

// enabledVariables loads the definitions of a suite's enabled variable
// items, preserving item order.
func (a *Analyzer) enabledVariables(ctx context.Context, suiteID string) ([]*types.VariableDefinition, error) {
	ids, err := a.suites.GetEnabledVariableIDs(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoVariables
	}
	defs := make([]*types.VariableDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := a.vars.Get(ctx, id)
		if err != nil {
			log.Printf("WARNING: analyzer: variable %s referenced but not found, skipping", id)
			continue
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, ErrNoVariables
	}
	return defs, nil
}
