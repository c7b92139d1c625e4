package agent

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tandem/internal/domain"
)

// idPattern is the agent ID grammar: a leading alphanumeric followed by
// up to 63 alphanumerics, dots, underscores, or hyphens.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidID reports whether id satisfies the agent ID grammar.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Instance is one hosted agent: an engine binding plus the settings the
// agent was created with.
type Instance struct {
	ID           string
	EngineName   string
	SystemPrompt string
	Cwd          string
	CreatedAt    time.Time

	engine Engine
}

// Engine returns the engine bound to this agent.
func (a *Instance) Engine() Engine {
	return a.engine
}

// EngineFactory constructs an engine for a named profile. Unknown names
// return an error.
type EngineFactory func(name string) (Engine, error)

// Registry tracks live agents by ID.
type Registry struct {
	mu            sync.RWMutex
	agents        map[string]*Instance
	factory       EngineFactory
	defaultEngine string
	logger        *slog.Logger
}

// NewRegistry creates an empty registry. defaultEngine is used when
// Create is called without an engine name.
func NewRegistry(factory EngineFactory, defaultEngine string, logger *slog.Logger) *Registry {
	return &Registry{
		agents:        make(map[string]*Instance),
		factory:       factory,
		defaultEngine: defaultEngine,
		logger:        logger.With("component", "agent_registry"),
	}
}

// CreateParams are the inputs to Create. Zero values select defaults:
// an empty ID is generated, an empty engine name uses the registry
// default.
type CreateParams struct {
	ID           string
	EngineName   string
	SystemPrompt string
	Cwd          string
}

// Create instantiates an agent and registers it. The returned instance
// is live immediately; callers own its turn serialization.
func (r *Registry) Create(params CreateParams) (*Instance, error) {
	id := params.ID
	if id == "" {
		id = uuid.New().String()
	}
	if !ValidID(id) {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("invalid agent id %q", id)}
	}

	engineName := params.EngineName
	if engineName == "" {
		engineName = r.defaultEngine
	}
	engine, err := r.factory(engineName)
	if err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("unknown engine %q", engineName)}
	}

	inst := &Instance{
		ID:           id,
		EngineName:   engineName,
		SystemPrompt: params.SystemPrompt,
		Cwd:          params.Cwd,
		CreatedAt:    time.Now().UTC(),
		engine:       engine,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[id]; exists {
		return nil, &domain.ConflictError{
			Message:      fmt.Sprintf("agent %q already exists", id),
			ResourceType: "agent",
			ResourceID:   id,
		}
	}
	r.agents[id] = inst

	r.logger.Info("agent created", "agent_id", id, "engine", engineName)
	return inst, nil
}

// Get returns the agent with the given ID.
func (r *Registry) Get(id string) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.agents[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("agent %q not found", id)}
	}
	return inst, nil
}

// Remove deregisters and returns the agent with the given ID. Callers
// run the destroy cascade (cancel, evict, clear) around this call.
func (r *Registry) Remove(id string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.agents[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("agent %q not found", id)}
	}
	delete(r.agents, id)

	r.logger.Info("agent removed", "agent_id", id)
	return inst, nil
}

// List returns all live agents ordered by ID.
func (r *Registry) List() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.agents))
	for _, inst := range r.agents {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
