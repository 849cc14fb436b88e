package fdp

import (
	"sync"
	"time"

	"fdp/pkg/types"
)

// Platform delivers window focus and blur. Each subscription returns a cancel function.
type Platform interface {
	OnFocus(fn func()) (cancel func())
	OnBlur(fn func()) (cancel func())
}

// BannerView is what the announcement banner displays.
type BannerView struct {
	CaseID   string
	Patient  string
	DOB      string
	Specimen string
	SlideID  string
	Duration time.Duration
}

type BannerRenderer interface {
	ShowBanner(view BannerView)
	HideBanner()
}

// HeaderView is the persistent case header.
type HeaderView struct {
	CaseID         string
	Patient        string
	Collapsed      bool
	Diagnostic     bool
	WarningActive  bool
	WarningType    types.WarningType
	MultiCaseCount int
}

type HeaderRenderer interface {
	RenderHeader(view HeaderView)
}

// ModalView is the blocking warning dialog.
type ModalView struct {
	Type    types.WarningType
	Title   string
	Message string
	// Cases lists every open case for multi-case warnings.
	Cases []types.CaseInfo
	// Before and After are set for case-mismatch warnings.
	Before  *types.CaseInfo
	After   *types.CaseInfo
	Actions []ModalAction
}

type ModalRenderer interface {
	ShowModal(view ModalView)
	CloseModal()
}

// Speaker plays the announcement audio.
type Speaker interface {
	PlayCue()
	Speak(text string)
}

// ManualPlatform is a Platform driven by explicit Focus and Blur calls,
// for headless windows and tests.
type ManualPlatform struct {
	mu     sync.Mutex
	nextID int
	focus  map[int]func()
	blur   map[int]func()
}

func NewManualPlatform() *ManualPlatform {
	return &ManualPlatform{focus: make(map[int]func()), blur: make(map[int]func())}
}

func (p *ManualPlatform) OnFocus(fn func()) func() { return p.subscribe(p.focus, fn) }
func (p *ManualPlatform) OnBlur(fn func()) func()  { return p.subscribe(p.blur, fn) }

func (p *ManualPlatform) Focus() { p.fire(p.focus) }
func (p *ManualPlatform) Blur()  { p.fire(p.blur) }

// Subscribers reports how many focus and blur callbacks are attached.
func (p *ManualPlatform) Subscribers() (focus, blur int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.focus), len(p.blur)
}

func (p *ManualPlatform) subscribe(set map[int]func(), fn func()) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	set[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(set, id)
	}
}

func (p *ManualPlatform) fire(set map[int]func()) {
	p.mu.Lock()
	fns := make([]func(), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
