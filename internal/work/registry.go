package work

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/rebalancer/internal/domain"
)

// Registry maps command kinds to their handlers.
type Registry struct {
	commands map[domain.ExecCommand]Command
	mu       sync.RWMutex
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[domain.ExecCommand]Command),
	}
}

// Register adds a command to the registry.
// Unknown command kinds are rejected; registering a kind twice replaces the handler.
func (r *Registry) Register(cmd Command) error {
	if _, err := domain.ParseCommand(string(cmd.Kind())); err != nil {
		return fmt.Errorf("cannot register handler: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.commands[cmd.Kind()] = cmd
	return nil
}

// Get returns the handler for a command, or nil if none is registered.
func (r *Registry) Get(kind domain.ExecCommand) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.commands[kind]
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.commands)
}

// Kinds returns all registered command kinds, sorted.
func (r *Registry) Kinds() []domain.ExecCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.ExecCommand, 0, len(r.commands))
	for kind := range r.commands {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Missing returns the known command kinds that have no handler.
func (r *Registry) Missing() []domain.ExecCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []domain.ExecCommand
	for _, kind := range domain.AllCommands() {
		if _, ok := r.commands[kind]; !ok {
			missing = append(missing, kind)
		}
	}
	return missing
}
