// Package actions executes client-side side effects on behalf of the remote
// model and reports their outcomes.
//
// An action is declared to the session when it opens (name, description,
// parameter schema) and dispatched when the remote side requests it. Dispatch
// never fails past its own boundary: every outcome, including transport
// failure, is captured into a [Result] so the conversation can report it
// inline and keep going.
package actions

import (
	"context"

	"github.com/invopop/jsonschema"
	"github.com/mayavoice/maya-core/core/session"
)

// HandlerFunc executes one action request. All failures are captured into
// the returned [Result].
type HandlerFunc func(ctx context.Context, args map[string]any) Result

// Definition is one invocable action: its declaration plus its handler.
type Definition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Handler     HandlerFunc
}

// Result is the outcome of one dispatch. Payload is what gets reported back
// over the session channel; Detail is the user-facing outcome text.
type Result struct {
	OK      bool
	Payload map[string]any
	Detail  string
}

func successResult(payload map[string]any, detail string) Result {
	return Result{OK: true, Payload: payload, Detail: detail}
}

func failureResult(payload map[string]any, detail string) Result {
	return Result{OK: false, Payload: payload, Detail: detail}
}

// Registry holds the declared actions for one conversation.
type Registry struct {
	order       []string
	definitions map[string]Definition
}

func NewRegistry(definitions ...Definition) *Registry {
	registry := &Registry{definitions: map[string]Definition{}}
	for _, definition := range definitions {
		if _, exists := registry.definitions[definition.Name]; exists {
			continue
		}
		registry.order = append(registry.order, definition.Name)
		registry.definitions[definition.Name] = definition
	}
	return registry
}

func (r *Registry) lookup(name string) (Definition, bool) {
	definition, ok := r.definitions[name]
	return definition, ok
}

// Declarations renders the registry in the shape the session setup expects,
// in registration order.
func (r *Registry) Declarations() []session.ActionDecl {
	declarations := make([]session.ActionDecl, 0, len(r.order))
	for _, name := range r.order {
		definition := r.definitions[name]
		declarations = append(declarations, session.ActionDecl{
			Name:        definition.Name,
			Description: definition.Description,
			Parameters:  definition.Parameters,
		})
	}
	return declarations
}

// Dispatcher executes action requests against a registry.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{registry: registry}
}

func (d *Dispatcher) Declarations() []session.ActionDecl {
	return d.registry.Declarations()
}

// Dispatch executes one request. A request naming an undeclared action is a
// protocol violation: it is logged and answered with a failure result so the
// remote turn does not stall waiting for a response.
func (d *Dispatcher) Dispatch(ctx context.Context, request session.ActionRequest) Result {
	ctx, span := tracer.Start(ctx, "dispatch action")
	defer span.End()

	definition, ok := d.registry.lookup(request.Name)
	if !ok {
		logger.WarnContext(ctx, "protocol violation: request for undeclared action",
			"action", request.Name, "id", request.ID)
		return failureResult(
			map[string]any{"error": "unknown action: " + request.Name},
			"Unknown action "+request.Name,
		)
	}

	return definition.Handler(ctx, request.Args)
}
