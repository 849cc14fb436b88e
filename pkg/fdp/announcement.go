package fdp

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// AnnouncementState describes the focus banner.
type AnnouncementState struct {
	Visible   bool
	StartTime time.Time
	Duration  time.Duration
	Case      *CaseContext
}

// AnnouncementController shows the case banner on focus and hides it after
// a duration. Each Show or Hide bumps a generation so a timer scheduled by
// an earlier Show cannot hide a later banner.
type AnnouncementController struct {
	mu         sync.Mutex
	clock      clock.Clock
	renderer   BannerRenderer
	emitter    *Emitter
	privacy    bool
	state      AnnouncementState
	timer      *clock.Timer
	generation uint64
}

func NewAnnouncementController(renderer BannerRenderer, clk clock.Clock, emitter *Emitter, privacy bool) *AnnouncementController {
	if clk == nil {
		clk = clock.New()
	}
	if emitter == nil {
		emitter = NewEmitter()
	}
	return &AnnouncementController{
		clock:    clk,
		renderer: renderer,
		emitter:  emitter,
		privacy:  privacy,
	}
}

// Show mounts the banner for c and schedules its hide after duration,
// replacing any banner already up.
func (a *AnnouncementController) Show(c CaseContext, duration time.Duration) {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.stopTimerLocked()

	now := a.clock.Now()
	shown := c
	a.state = AnnouncementState{Visible: true, StartTime: now, Duration: duration, Case: &shown}
	if a.renderer != nil {
		a.renderer.ShowBanner(BannerView{
			CaseID:   c.CaseID,
			Patient:  c.DisplayPatient(a.privacy),
			DOB:      a.dob(c),
			Specimen: c.Specimen,
			SlideID:  c.SlideID,
			Duration: duration,
		})
	}
	a.timer = a.clock.AfterFunc(duration, func() { a.expire(gen) })
	a.mu.Unlock()

	a.emitter.Emit(Event{Type: EventAnnouncementStart, At: now, Case: &shown, Duration: duration})
}

// Hide cancels any pending auto-hide and removes the banner. Hiding a
// hidden banner does nothing.
func (a *AnnouncementController) Hide() {
	a.mu.Lock()
	a.generation++
	a.stopTimerLocked()
	ev, ok := a.hideLocked()
	a.mu.Unlock()

	if ok {
		a.emitter.Emit(ev)
	}
}

// State returns a copy of the banner state.
func (a *AnnouncementController) State() AnnouncementState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *AnnouncementController) expire(gen uint64) {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	ev, ok := a.hideLocked()
	a.mu.Unlock()

	if ok {
		a.emitter.Emit(ev)
	}
}

func (a *AnnouncementController) hideLocked() (Event, bool) {
	if !a.state.Visible {
		return Event{}, false
	}
	ev := Event{
		Type:     EventAnnouncementEnd,
		At:       a.clock.Now(),
		Case:     a.state.Case,
		Duration: a.clock.Since(a.state.StartTime),
	}
	a.state.Visible = false
	if a.renderer != nil {
		a.renderer.HideBanner()
	}
	return ev, true
}

func (a *AnnouncementController) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Date of birth is withheld in privacy mode.
func (a *AnnouncementController) dob(c CaseContext) string {
	if a.privacy {
		return ""
	}
	return c.PatientDOB
}
