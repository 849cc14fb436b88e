package fdp

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fdp/pkg/types"
)

// Options assembles a window session. Renderers may be nil for headless use.
type Options struct {
	Config   Config
	WindowID string
	Platform Platform
	Banner   BannerRenderer
	Header   HeaderRenderer
	Modal    ModalRenderer
	Audio    *AudioAnnouncer
	Emitter  *Emitter
	Clock    clock.Clock
	Logger   *zap.Logger

	// ActionsFor overrides the buttons offered for a warning.
	ActionsFor func(w types.SessionWarning) []ModalAction
}

// Session is one window's Layer 1 state. It owns the announcement,
// indicator and modal controllers, turns platform focus into announcements
// and routes server frames from a session client into the UI.
type Session struct {
	config     Config
	windowID   string
	platform   Platform
	audio      *AudioAnnouncer
	emitter    *Emitter
	clock      clock.Clock
	logger     *zap.Logger
	actionsFor func(w types.SessionWarning) []ModalAction

	announcement *AnnouncementController
	indicator    *IndicatorController
	modal        *ModalController

	mu       sync.Mutex
	started  bool
	current  *CaseContext
	focused  bool
	lastBlur time.Time
	cancels  []func()

	// active is the warning behind the badge and modal. pending is a less
	// severe warning that arrived while active was up.
	active  *types.SessionWarning
	pending *types.SessionWarning
}

func NewSession(opts Options) (*Session, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emitter == nil {
		opts.Emitter = NewEmitter()
	}
	if opts.WindowID == "" {
		opts.WindowID = uuid.NewString()
	}
	if opts.Audio == nil {
		opts.Audio = NewAudioAnnouncer(AudioOff, opts.Config.PrivacyMode, nil)
	}
	if opts.ActionsFor == nil {
		opts.ActionsFor = DefaultActions
	}

	cfg := opts.Config
	return &Session{
		config:       cfg,
		windowID:     opts.WindowID,
		platform:     opts.Platform,
		audio:        opts.Audio,
		emitter:      opts.Emitter,
		clock:        opts.Clock,
		logger:       opts.Logger.With(zap.String("window_id", opts.WindowID)),
		actionsFor:   opts.ActionsFor,
		announcement: NewAnnouncementController(opts.Banner, opts.Clock, opts.Emitter, cfg.PrivacyMode),
		indicator:    NewIndicatorController(opts.Header, cfg.DiagnosticMode, cfg.PrivacyMode),
		modal:        NewModalController(opts.Modal, cfg.PrivacyMode),
	}, nil
}

// DefaultActions offers a single acknowledgment, so every warning modal
// can be dismissed only by explicitly accepting it.
func DefaultActions(w types.SessionWarning) []ModalAction {
	label := "I understand"
	if w.Type == types.WarningCaseMismatch {
		label = "I have checked the case"
	}
	return []ModalAction{{ID: "acknowledge", Label: label, Kind: ActionAcknowledge}}
}

// Start initializes audio and subscribes to platform focus and blur.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSessionStarted
	}
	if err := s.audio.Init(); err != nil {
		return err
	}
	if s.platform != nil {
		s.cancels = append(s.cancels,
			s.platform.OnFocus(s.HandleFocus),
			s.platform.OnBlur(s.HandleBlur))
	}
	s.started = true
	s.focused = true
	return nil
}

// Stop unsubscribes from the platform, hides the banner and releases audio.
func (s *Session) Stop() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.started = false
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.announcement.Hide()
	s.audio.Destroy()
}

func (s *Session) WindowID() string { return s.windowID }

func (s *Session) Emitter() *Emitter { return s.emitter }

func (s *Session) Announcement() *AnnouncementController { return s.announcement }

func (s *Session) Indicator() *IndicatorController { return s.indicator }

func (s *Session) Modal() *ModalController { return s.modal }

// Case returns the case the window is showing.
func (s *Session) Case() (CaseContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return CaseContext{}, false
	}
	return *s.current, true
}

// Focused reports whether the window currently has focus.
func (s *Session) Focused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// OpenCase shows c in the header and announces it.
func (s *Session) OpenCase(c CaseContext) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	opened := c
	s.current = &opened
	s.mu.Unlock()

	s.indicator.Show(c)
	s.announce(c, s.config.BaseDuration)
	s.caseChanged(c)
	return nil
}

// SwitchCase replaces the window's case.
func (s *Session) SwitchCase(c CaseContext) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	switched := c
	s.current = &switched
	s.mu.Unlock()

	s.indicator.Update(c)
	s.announce(c, s.config.BaseDuration)
	s.caseChanged(c)
	return nil
}

// CloseCase drops the case and hides the banner.
func (s *Session) CloseCase() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	s.announcement.Hide()
	s.indicator.Clear()
}

// HandleFocus announces the current case for a duration that grows with
// the time since the window last lost focus.
func (s *Session) HandleFocus() {
	s.mu.Lock()
	now := s.clock.Now()
	minutes := 0.0
	if !s.lastBlur.IsZero() {
		minutes = now.Sub(s.lastBlur).Minutes()
	}
	s.focused = true
	var current *CaseContext
	if s.current != nil {
		c := *s.current
		current = &c
	}
	s.mu.Unlock()

	s.emitter.Emit(Event{Type: EventFocus, At: now, Case: current})
	if current != nil {
		s.announce(*current, Decay(s.config, minutes))
	}
}

// HandleBlur records when the window lost focus and hides the banner.
func (s *Session) HandleBlur() {
	s.mu.Lock()
	now := s.clock.Now()
	s.lastBlur = now
	s.focused = false
	s.mu.Unlock()

	s.announcement.Hide()
	s.emitter.Emit(Event{Type: EventBlur, At: now})
}

func (s *Session) announce(c CaseContext, d time.Duration) {
	s.announcement.Show(c, d)
	s.audio.Announce(c)
}

// OnConnected is called by the session client once the socket is open.
func (s *Session) OnConnected() {
	s.emitter.Emit(Event{Type: EventSessionConnected, At: s.clock.Now()})
}

// OnDisconnected is called when the socket closes. Warnings cannot be
// delivered until the caller reconnects.
func (s *Session) OnDisconnected(err error) {
	if err != nil {
		s.logger.Warn("awareness session disconnected", zap.Error(err))
	}
	s.emitter.Emit(Event{Type: EventSessionDisconnected, At: s.clock.Now(), Err: err})
}

func (s *Session) OnAck(ack types.AckPayload) {
	if ack.Registered != nil && !*ack.Registered {
		s.logger.Warn("registration not acknowledged")
	}
}

// OnWarning raises the badge and the modal. A warning less severe than the
// one already up waits behind it instead of replacing it.
func (s *Session) OnWarning(w types.SessionWarning) {
	if w.TargetWindowID != "" && w.TargetWindowID != s.windowID {
		s.logger.Debug("ignoring warning for another window", zap.String("target", w.TargetWindowID))
		return
	}

	warning := w
	s.mu.Lock()
	deferred := s.active != nil && severity(s.active.Type) > severity(w.Type)
	if deferred {
		s.pending = &warning
	} else {
		if s.active != nil && s.active.Type != w.Type {
			prev := *s.active
			s.pending = &prev
		}
		s.active = &warning
	}
	s.mu.Unlock()

	if deferred {
		s.logger.Debug("warning held behind a more severe one", zap.String("warning_type", string(w.Type)))
	} else {
		s.raise(warning)
	}
	s.emitter.Emit(Event{Type: EventWarning, At: s.clock.Now(), Warning: &warning})
}

// OnSync clears multi-case state once the user has at most one case open.
func (s *Session) OnSync(payload types.SyncPayload) {
	cases := make(map[string]struct{}, len(payload.Registrations))
	for _, r := range payload.Registrations {
		cases[r.CaseID] = struct{}{}
	}
	if len(cases) > 1 {
		return
	}
	s.resolve(types.WarningMultiCase)
}

func (s *Session) raise(w types.SessionWarning) {
	s.indicator.SetWarning(true, w.Type, len(w.Cases))
	if err := s.modal.Show(w, s.bindActions(w)); err != nil {
		s.logger.Error("warning modal not shown", zap.String("warning_type", string(w.Type)), zap.Error(err))
	}
}

// bindActions makes acknowledging a warning clear it. A multi-case badge
// stays until a sync shows the cases resolved.
func (s *Session) bindActions(w types.SessionWarning) []ModalAction {
	actions := append([]ModalAction(nil), s.actionsFor(w)...)
	if w.Type == types.WarningMultiCase {
		return actions
	}
	for i := range actions {
		if actions[i].Kind != ActionAcknowledge {
			continue
		}
		next := actions[i].OnSelect
		actions[i].OnSelect = func() {
			s.resolve(w.Type)
			if next != nil {
				next()
			}
		}
	}
	return actions
}

// caseChanged clears a case-mismatch once the window shows the expected
// case, and a stale-window warning once any case is opened again.
func (s *Session) caseChanged(c CaseContext) {
	s.mu.Lock()
	var cleared types.WarningType
	if s.active != nil {
		switch {
		case s.active.Type == types.WarningCaseMismatch && expectedCase(*s.active) == c.CaseID:
			cleared = s.active.Type
		case s.active.Type == types.WarningStaleWindow:
			cleared = s.active.Type
		}
	}
	if s.pending != nil && s.pending.Type == types.WarningStaleWindow {
		s.pending = nil
	}
	s.mu.Unlock()

	if cleared != "" {
		s.resolve(cleared)
	}
}

// resolve drops the warning of type t. If it was the one on screen, a
// pending warning takes its place or the badge is cleared.
func (s *Session) resolve(t types.WarningType) {
	s.mu.Lock()
	if s.pending != nil && s.pending.Type == t {
		s.pending = nil
	}
	if s.active == nil || s.active.Type != t {
		s.mu.Unlock()
		return
	}
	next := s.pending
	s.active, s.pending = next, nil
	s.mu.Unlock()

	if view, ok := s.modal.Current(); ok && view.Type == t {
		s.modal.Close()
	}
	if next != nil {
		s.raise(*next)
		return
	}
	s.indicator.SetWarning(false, "", 0)
}

// ActiveWarning returns the warning currently shown, if any.
func (s *Session) ActiveWarning() (types.SessionWarning, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return types.SessionWarning{}, false
	}
	return *s.active, true
}

func severity(t types.WarningType) int {
	switch t {
	case types.WarningCaseMismatch:
		return 3
	case types.WarningStaleWindow:
		return 2
	case types.WarningMultiCase:
		return 1
	default:
		return 0
	}
}

// expectedCase is the case a mismatch warning says the window should show.
func expectedCase(w types.SessionWarning) string {
	if len(w.Cases) > 1 {
		return w.Cases[1].CaseID
	}
	return ""
}

func (s *Session) OnError(e types.ErrorPayload) {
	s.logger.Warn("awareness service error", zap.String("code", e.Code), zap.String("message", e.Message))
}
