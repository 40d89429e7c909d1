package processor

import (
	"context"
	"sync"

	"github.com/vietddude/docforge/internal/core/domain"
)

// ProgressFunc lets a handler report progress mid-run.
type ProgressFunc func(domain.Progress)

// Handler executes one job type. The engine never interrupts a running
// handler: cancellation is cooperative, observed through ctx at safe
// checkpoints. Timeout enforcement is also the handler's responsibility.
type Handler interface {
	Execute(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error)

func (f HandlerFunc) Execute(ctx context.Context, job *domain.Job, report ProgressFunc) (any, error) {
	return f(ctx, job, report)
}

// HandlerRegistry maps job types to their handlers.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[domain.JobType]Handler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[domain.JobType]Handler)}
}

// Register installs the handler for a job type, replacing any previous one.
func (r *HandlerRegistry) Register(t domain.JobType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Get returns the handler for a job type.
func (r *HandlerRegistry) Get(t domain.JobType) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}
