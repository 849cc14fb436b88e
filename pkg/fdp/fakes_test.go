package fdp

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

type recordingBanner struct {
	mu     sync.Mutex
	shown  []BannerView
	hidden int
}

func (b *recordingBanner) ShowBanner(v BannerView) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shown = append(b.shown, v)
}

func (b *recordingBanner) HideBanner() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hidden++
}

func (b *recordingBanner) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.shown), b.hidden
}

func (b *recordingBanner) last() BannerView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shown[len(b.shown)-1]
}

type recordingHeader struct {
	views []HeaderView
}

func (h *recordingHeader) RenderHeader(v HeaderView) { h.views = append(h.views, v) }

func (h *recordingHeader) last() HeaderView { return h.views[len(h.views)-1] }

type recordingModal struct {
	shown  []ModalView
	closed int
}

func (m *recordingModal) ShowModal(v ModalView) { m.shown = append(m.shown, v) }
func (m *recordingModal) CloseModal()           { m.closed++ }

type recordingSpeaker struct {
	cues   int
	spoken []string
}

func (s *recordingSpeaker) PlayCue()          { s.cues++ }
func (s *recordingSpeaker) Speak(text string) { s.spoken = append(s.spoken, text) }

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func subscribeAll(e *Emitter) *eventLog {
	l := &eventLog{}
	for _, t := range []EventType{
		EventFocus, EventBlur, EventAnnouncementStart, EventAnnouncementEnd,
		EventWarning, EventSessionConnected, EventSessionDisconnected,
	} {
		e.On(t, l.record)
	}
	return l
}

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(1700000000000))
	return clk
}

var testCase = CaseContext{
	CaseID:      "LAB:S26-12345",
	PatientName: "Doe, Jane Q",
	PatientDOB:  "1970-01-01",
	Specimen:    "A1",
	SlideID:     "A1-3",
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
