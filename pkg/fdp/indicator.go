package fdp

import (
	"sync"

	"fdp/pkg/types"
)

// IndicatorState is the persistent header. Collapsed is never true while
// Diagnostic or WarningActive is true.
type IndicatorState struct {
	Case           *CaseContext
	Collapsed      bool
	Diagnostic     bool
	WarningActive  bool
	WarningType    types.WarningType
	MultiCaseCount int
}

type IndicatorController struct {
	mu       sync.Mutex
	renderer HeaderRenderer
	privacy  bool
	state    IndicatorState
}

func NewIndicatorController(renderer HeaderRenderer, diagnostic, privacy bool) *IndicatorController {
	return &IndicatorController{
		renderer: renderer,
		privacy:  privacy,
		state:    IndicatorState{Diagnostic: diagnostic},
	}
}

// Show displays c in the header.
func (i *IndicatorController) Show(c CaseContext) {
	i.mu.Lock()
	defer i.mu.Unlock()
	shown := c
	i.state.Case = &shown
	i.renderLocked()
}

// Update replaces the displayed case after a switch.
func (i *IndicatorController) Update(c CaseContext) {
	i.Show(c)
}

// Clear removes the case from the header.
func (i *IndicatorController) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state.Case = nil
	i.renderLocked()
}

// ToggleCollapse flips the header and reports whether it changed. It is a
// no-op in diagnostic mode and while a warning is active.
func (i *IndicatorController) ToggleCollapse() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state.Diagnostic || i.state.WarningActive {
		return false
	}
	i.state.Collapsed = !i.state.Collapsed
	i.renderLocked()
	return true
}

// SetWarning updates the badge. An active warning expands the header.
func (i *IndicatorController) SetWarning(active bool, warningType types.WarningType, count int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.state.WarningActive = active
	if active {
		i.state.WarningType = warningType
		i.state.MultiCaseCount = count
		i.state.Collapsed = false
	} else {
		i.state.WarningType = ""
		i.state.MultiCaseCount = 0
	}
	i.renderLocked()
}

func (i *IndicatorController) State() IndicatorState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *IndicatorController) renderLocked() {
	if i.state.Diagnostic || i.state.WarningActive {
		i.state.Collapsed = false
	}
	if i.renderer == nil {
		return
	}
	view := HeaderView{
		Collapsed:      i.state.Collapsed,
		Diagnostic:     i.state.Diagnostic,
		WarningActive:  i.state.WarningActive,
		WarningType:    i.state.WarningType,
		MultiCaseCount: i.state.MultiCaseCount,
	}
	if i.state.Case != nil {
		view.CaseID = i.state.Case.CaseID
		view.Patient = i.state.Case.DisplayPatient(i.privacy)
	}
	i.renderer.RenderHeader(view)
}
