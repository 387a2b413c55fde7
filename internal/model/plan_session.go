package model

import (
	"errors"
	"time"

	"sysdesign-ai/internal/artifact"
	"sysdesign-ai/internal/diagram"
	"sysdesign-ai/internal/pipeline"
)

// ErrSessionChanged is returned by a session store when the stored session
// moved past the version a save was based on.
var ErrSessionChanged = errors.New("session changed by another request")

// PlanSession is the whole state of one interactive planning session. It is
// kept in the session store and never written to the database.
type PlanSession struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	State  string `json:"state"`
	// Locked freezes the components/functions stage once requirements have
	// been requested from it.
	Locked bool `json:"locked"`

	Components       artifact.Table[artifact.ComponentFunctionRow] `json:"components"`
	Requirements     artifact.Table[artifact.RequirementRow]       `json:"requirements"`
	ComponentDiagram *diagram.Payload                              `json:"component_diagram,omitempty"`
	FunctionDiagram  *diagram.Payload                              `json:"function_diagram,omitempty"`
	FMEA             artifact.Table[artifact.FMEARow]              `json:"fmea"`
	DVPR             artifact.Table[artifact.DVPRRow]              `json:"dvpr"`

	ExportedFile string    `json:"exported_file,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Version counts saves. A save based on an older version is rejected.
	Version int64 `json:"version"`
}

func NewPlanSession(id string, now time.Time) *PlanSession {
	return &PlanSession{
		ID:        id,
		State:     pipeline.StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Outputs summarizes which stage results are present, for the pipeline guards.
func (s *PlanSession) Outputs() pipeline.Outputs {
	return pipeline.Outputs{
		Components:   s.Components.Present(),
		Requirements: s.Requirements.Present(),
		FMEA:         s.FMEA.Present(),
		DVPR:         s.DVPR.Present(),
	}
}
