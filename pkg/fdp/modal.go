package fdp

import (
	"fmt"
	"strings"
	"sync"

	"fdp/pkg/types"
)

// ActionKind classifies a modal button. Only acknowledge and cancel
// actions make a modal dismissable.
type ActionKind string

const (
	ActionAcknowledge ActionKind = "acknowledge"
	ActionCancel      ActionKind = "cancel"
	ActionOther       ActionKind = "other"
)

type ModalAction struct {
	ID       string
	Label    string
	Kind     ActionKind
	OnSelect func()
}

// ModalController owns the single warning dialog.
type ModalController struct {
	mu       sync.Mutex
	renderer ModalRenderer
	privacy  bool
	current  *ModalView
}

func NewModalController(renderer ModalRenderer, privacy bool) *ModalController {
	return &ModalController{renderer: renderer, privacy: privacy}
}

// Show replaces any open modal with one for w.
func (m *ModalController) Show(w types.SessionWarning, actions []ModalAction) error {
	if len(actions) == 0 {
		return ErrNoActions
	}

	view := m.render(w, actions)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.renderer != nil {
		m.renderer.CloseModal()
	}
	m.current = &view
	if m.renderer != nil {
		m.renderer.ShowModal(view)
	}
	return nil
}

// Select closes the modal and runs the chosen action.
func (m *ModalController) Select(actionID string) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return ErrNoModal
	}
	var chosen *ModalAction
	for i := range m.current.Actions {
		if m.current.Actions[i].ID == actionID {
			chosen = &m.current.Actions[i]
			break
		}
	}
	if chosen == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}
	onSelect := chosen.OnSelect
	m.closeLocked()
	m.mu.Unlock()

	if onSelect != nil {
		onSelect()
	}
	return nil
}

// Dismiss handles escape or an overlay click. It closes the modal only
// when one of its actions is an acknowledgment or cancel.
func (m *ModalController) Dismiss() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return false
	}
	for _, a := range m.current.Actions {
		if a.Kind == ActionAcknowledge || a.Kind == ActionCancel {
			m.closeLocked()
			return true
		}
	}
	return false
}

// Close removes the modal regardless of its actions. Used when the
// condition behind the warning has resolved.
func (m *ModalController) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.closeLocked()
	}
}

// Current returns the open modal, if any.
func (m *ModalController) Current() (ModalView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ModalView{}, false
	}
	return *m.current, true
}

func (m *ModalController) closeLocked() {
	m.current = nil
	if m.renderer != nil {
		m.renderer.CloseModal()
	}
}

func (m *ModalController) render(w types.SessionWarning, actions []ModalAction) ModalView {
	view := ModalView{
		Type:    w.Type,
		Message: w.Message,
		Actions: append([]ModalAction(nil), actions...),
	}
	cases := make([]types.CaseInfo, len(w.Cases))
	for i, c := range w.Cases {
		cases[i] = c
		cases[i].WindowIDs = append([]string(nil), c.WindowIDs...)
		if m.privacy {
			cases[i].PatientIdentifier = Initials(c.PatientIdentifier)
		}
	}

	switch w.Type {
	case types.WarningMultiCase:
		view.Title = fmt.Sprintf("%d different cases are open", len(cases))
		view.Cases = cases
	case types.WarningCaseMismatch:
		view.Title = "This window shows a different case"
		if len(cases) > 0 {
			view.Before = &cases[0]
		}
		if len(cases) > 1 {
			view.After = &cases[1]
		}
	case types.WarningStaleWindow:
		view.Title = "This window is no longer tracked"
		view.Cases = cases
	default:
		view.Title = "Session warning"
		view.Cases = cases
	}
	if view.Message == "" {
		view.Message = describe(view)
	}
	return view
}

func describe(view ModalView) string {
	switch {
	case view.Before != nil && view.After != nil:
		return fmt.Sprintf("This window shows %s but your workflow expects %s.", view.Before.CaseID, view.After.CaseID)
	case len(view.Cases) > 0:
		ids := make([]string, len(view.Cases))
		for i, c := range view.Cases {
			ids[i] = c.CaseID
		}
		return "Open cases: " + strings.Join(ids, ", ")
	default:
		return view.Title
	}
}
