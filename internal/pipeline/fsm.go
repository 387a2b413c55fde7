// Package pipeline holds the stage state machine of a planning session.
//
// A session moves strictly forward:
//
//	idle -> components_ready -> requirements_ready -> component_diagram_ready
//	     -> function_diagram_ready -> fmea_ready -> dvpr_ready -> exported
//
// Each step is a user event guarded on the outputs it consumes. Next is a
// pure function of (state, event, outputs); callers persist the result.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Untyped so they convert to statekit.StateID.
const (
	StateIdle                  = "idle"
	StateComponentsReady       = "components_ready"
	StateRequirementsReady     = "requirements_ready"
	StateComponentDiagramReady = "component_diagram_ready"
	StateFunctionDiagramReady  = "function_diagram_ready"
	StateFMEAReady             = "fmea_ready"
	StateDVPRReady             = "dvpr_ready"
	StateExported              = "exported"
)

const (
	EventGenerate             = "generate"
	EventDeriveRequirements   = "derive_requirements"
	EventDrawComponentDiagram = "draw_component_diagram"
	EventDrawFunctionDiagram  = "draw_function_diagram"
	EventAnalyzeFMEA          = "analyze_fmea"
	EventPlanDVPR             = "plan_dvpr"
	EventExport               = "export"
)

const (
	guardComponents = "hasComponents"
	guardDVPRInputs = "hasDVPRInputs"
	guardPlan       = "hasPlan"
)

var ErrTransitionNotAllowed = errors.New("transition not allowed")

// Outputs tells the guards which stage results a session already holds.
type Outputs struct {
	Components   bool
	Requirements bool
	FMEA         bool
	DVPR         bool
}

// Next returns the state reached from state on event, or
// ErrTransitionNotAllowed when the event is not valid there or its guard
// rejects the current outputs.
func Next(state, event string, outputs Outputs) (string, error) {
	interpreter, err := newInterpreter(state, outputs)
	if err != nil {
		return "", err
	}

	interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	after := string(interpreter.State().Value)
	if after == state {
		return "", fmt.Errorf("%w: %q in state %q", ErrTransitionNotAllowed, event, state)
	}
	return after, nil
}

// IsTerminal reports whether state has no outgoing transition.
func IsTerminal(state string) bool {
	return state == StateExported
}

// Known reports whether state belongs to the machine.
func Known(state string) bool {
	switch state {
	case StateIdle, StateComponentsReady, StateRequirementsReady, StateComponentDiagramReady,
		StateFunctionDiagramReady, StateFMEAReady, StateDVPRReady, StateExported:
		return true
	}
	return false
}

func newInterpreter(state string, outputs Outputs) (*statekit.Interpreter[Outputs], error) {
	if !Known(state) {
		return nil, fmt.Errorf("unknown pipeline state %q", state)
	}

	builder := statekit.NewMachine[Outputs]("plan-pipeline").
		WithInitial(statekit.StateID(state)).
		WithContext(outputs).
		WithGuard(guardComponents, func(ctx Outputs, e statekit.Event) bool {
			return ctx.Components
		}).
		WithGuard(guardDVPRInputs, func(ctx Outputs, e statekit.Event) bool {
			return ctx.Requirements && ctx.FMEA
		}).
		WithGuard(guardPlan, func(ctx Outputs, e statekit.Event) bool {
			return ctx.DVPR
		})

	builder.State(StateIdle).
		On(EventGenerate).Target(StateComponentsReady).
		Done()

	builder.State(StateComponentsReady).
		On(EventDeriveRequirements).Target(StateRequirementsReady).Guard(guardComponents).
		Done()

	builder.State(StateRequirementsReady).
		On(EventDrawComponentDiagram).Target(StateComponentDiagramReady).Guard(guardComponents).
		Done()

	builder.State(StateComponentDiagramReady).
		On(EventDrawFunctionDiagram).Target(StateFunctionDiagramReady).Guard(guardComponents).
		Done()

	builder.State(StateFunctionDiagramReady).
		On(EventAnalyzeFMEA).Target(StateFMEAReady).Guard(guardComponents).
		Done()

	builder.State(StateFMEAReady).
		On(EventPlanDVPR).Target(StateDVPRReady).Guard(guardDVPRInputs).
		Done()

	builder.State(StateDVPRReady).
		On(EventExport).Target(StateExported).Guard(guardPlan).
		Done()

	builder.State(StateExported).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build pipeline machine failed: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return interpreter, nil
}
