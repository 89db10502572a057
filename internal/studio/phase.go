package studio

import "github.com/manash/prodstudio/pkg/models"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseValidating
	PhaseInFlight
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseValidating:
		return "validating"
	case PhaseInFlight:
		return "in_flight"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Machine string

const (
	MachineGenerate Machine = "generate"
	MachineUpscale  Machine = "upscale"
)

// Transition is one state change of the generation or upscale machine.
type Transition struct {
	Machine Machine
	From    Phase
	To      Phase
	Target  models.UpscaleTarget
}

// ArtifactEvent describes a newly stored artifact.
type ArtifactEvent struct {
	SessionID string
	Operation string
	Prompt    string
	Target    models.UpscaleTarget
	Export    models.ExportSettings
	Brief     string
	Composite bool
	PresetIDs map[models.Category][]string
	Artifact  *models.Artifact
}
