// Package macros adapts Loreline variables to the host application's
// template-macro registry. One callback is registered per variable name,
// plus a fixed callback for raw conversation floors. Callbacks must return
// synchronously, so values are served out of an in-memory LRU cache that is
// preloaded after every conversation switch; a cache miss yields an empty
// string rather than blocking.
package macros

import (
	"context"
	"log"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/loreline/internal/chat"
	"github.com/scrypster/loreline/internal/resolver"
	"github.com/scrypster/loreline/internal/services"
	"github.com/scrypster/loreline/pkg/types"
)

// cacheSize bounds the number of (variable, chat) values held in memory.
const cacheSize = 256

// Callback resolves one macro invocation. arg is the raw text following
// "@" in {{name@arg}}, or empty for {{name}}.
type Callback func(arg string) string

// Registry is the host macro adapter. Names map to callbacks; Resolve is
// the synchronous entry point the host template engine calls.
type Registry struct {
	vars       *services.VariableService
	transcript chat.Transcript
	res        *resolver.Resolver

	mu        sync.RWMutex
	callbacks map[string]Callback

	cache *lru.Cache[string, *types.VariableValue]
}

// NewRegistry creates a registry with the fixed raw-floor callback already
// registered.
func NewRegistry(vars *services.VariableService, transcript chat.Transcript, res *resolver.Resolver) (*Registry, error) {
	cache, err := lru.New[string, *types.VariableValue](cacheSize)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		vars:       vars,
		transcript: transcript,
		res:        res,
		callbacks:  make(map[string]Callback),
		cache:      cache,
	}
	r.callbacks[resolver.FloorMacroName] = func(arg string) string {
		return res.ResolveFloorMacro(transcript.ActiveChatID(), arg)
	}
	return r, nil
}

// Resolve invokes the callback registered under name. Unknown names
// resolve to the empty string.
func (r *Registry) Resolve(name, arg string) string {
	r.mu.RLock()
	cb, ok := r.callbacks[name]
	r.mu.RUnlock()
	if !ok {
		return ""
	}
	return cb(arg)
}

// Names returns every registered macro name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for name := range r.callbacks {
		names = append(names, name)
	}
	return names
}

// RefreshVariableMacros rebuilds the per-variable callbacks from the
// current definitions. Call after creating, renaming, or deleting a
// variable, and after a conversation switch.
func (r *Registry) RefreshVariableMacros(ctx context.Context) error {
	defs, err := r.vars.List(ctx)
	if err != nil {
		return err
	}

	callbacks := make(map[string]Callback, len(defs)+1)
	callbacks[resolver.FloorMacroName] = func(arg string) string {
		return r.res.ResolveFloorMacro(r.transcript.ActiveChatID(), arg)
	}
	for _, def := range defs {
		variableID := def.ID
		callbacks[def.Name] = func(arg string) string {
			return r.renderCached(variableID, arg)
		}
	}

	r.mu.Lock()
	r.callbacks = callbacks
	r.mu.Unlock()
	return nil
}

// Preload loads every variable's value for the given chat into the cache.
// Best effort: load failures are logged and leave the previous cache entry
// in place.
func (r *Registry) Preload(ctx context.Context, chatID string) {
	if chatID == "" {
		return
	}
	defs, err := r.vars.List(ctx)
	if err != nil {
		log.Printf("macros: preload failed to list variables: %v", err)
		return
	}
	for _, def := range defs {
		value, err := r.vars.GetValue(ctx, def.ID, chatID)
		if err != nil {
			log.Printf("macros: preload failed for %q: %v", def.Name, err)
			continue
		}
		r.cache.Add(cacheKey(def.ID, chatID), value)
	}
}

// Invalidate drops one (variable, chat) value from the cache. Call after a
// value mutation so the next preload observes the change.
func (r *Registry) Invalidate(variableID, chatID string) {
	r.cache.Remove(cacheKey(variableID, chatID))
}

// Reload replaces one (variable, chat) cached value with a fresh read, so
// macro resolves observe a mutation immediately instead of waiting for the
// next preload. A failed read drops the stale entry instead.
func (r *Registry) Reload(ctx context.Context, variableID, chatID string) {
	if chatID == "" {
		return
	}
	value, err := r.vars.GetValue(ctx, variableID, chatID)
	if err != nil {
		log.Printf("macros: reload failed for variable %s: %v", variableID, err)
		r.Invalidate(variableID, chatID)
		return
	}
	r.cache.Add(cacheKey(variableID, chatID), value)
}

// renderCached serves a variable macro from the cache. Misses return ""
// rather than block; callers run a preload pass after conversation
// switches.
func (r *Registry) renderCached(variableID, arg string) string {
	chatID := r.transcript.ActiveChatID()
	if chatID == "" {
		return ""
	}
	value, ok := r.cache.Get(cacheKey(variableID, chatID))
	if !ok {
		return ""
	}
	out, err := resolver.RenderValue(value, arg)
	if err != nil {
		log.Printf("WARNING: macros: bad range %q for variable %s: %v", arg, variableID, err)
		return ""
	}
	return out
}

func cacheKey(variableID, chatID string) string {
	return variableID + "|" + chatID
}
