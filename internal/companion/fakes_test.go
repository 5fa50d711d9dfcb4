package companion

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jordanhubbard/inanna/internal/responses"
	"github.com/jordanhubbard/inanna/internal/sentiment"
	"github.com/jordanhubbard/inanna/internal/simulation"
	"github.com/jordanhubbard/inanna/pkg/config"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.General.CreatorName = "Luz"
	cfg.General.BirthDate = "1990-01-05"
	cfg.EventLog.Path = ""
	cfg.Knowledge.Path = filepath.Join(t.TempDir(), "kb.json")
	cfg.Dispatcher.PollInterval = 10 * time.Millisecond
	cfg.Dispatcher.ErrorPause = 0
	cfg.Dispatcher.StopTimeout = time.Second
	cfg.Scheduler.StopTimeout = time.Second
	cfg.Speech.CaptureInterval = 0
	return cfg
}

type recordingSink struct {
	mu  sync.Mutex
	got []messages.Response
}

func (s *recordingSink) Deliver(_ context.Context, resp messages.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, resp)
	return nil
}

func (s *recordingSink) responses() []messages.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messages.Response(nil), s.got...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type fakeConn struct {
	down      atomic.Bool
	noConnect bool
	verifies  atomic.Int32
}

func (f *fakeConn) IsConnected() bool { return !f.down.Load() }
func (f *fakeConn) Establish() bool   { return !f.noConnect }
func (f *fakeConn) Verify(time.Duration) bool {
	f.verifies.Add(1)
	return !f.down.Load()
}
func (f *fakeConn) State() string {
	if f.down.Load() {
		return simulation.ConnDisconnected
	}
	return simulation.ConnConnected
}
func (f *fakeConn) Energy() int { return 88 }

type fakeSentiment struct {
	label string
	panic bool
}

func (f fakeSentiment) Classify(string) (string, error) {
	if f.panic {
		panic("classifier exploded")
	}
	return f.label, nil
}
func (f fakeSentiment) Score(string) float64 { return 0.5 }

type fakeEmotion struct{ emotion string }

func (f fakeEmotion) Infer(string, string) (string, error) { return f.emotion, nil }

type fakeKnowledge struct {
	mu      sync.Mutex
	answer  string
	err     error
	added   []string
	accepts bool
}

func (f *fakeKnowledge) Query(string) (string, error) { return f.answer, f.err }
func (f *fakeKnowledge) AddKnowledge(source, data string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, source+": "+data)
	return f.accepts
}

type fakeResponder struct {
	calls atomic.Int32
	last  atomic.Value
	panic bool
}

func (f *fakeResponder) Generate(emotion string, ctx responses.Context) string {
	if f.panic {
		panic("responder exploded")
	}
	f.calls.Add(1)
	f.last.Store(emotion)
	return "respuesta para " + emotion + " de " + ctx.UserName
}

type fakeProtection struct{}

func (fakeProtection) HandleNegative(string, string) {}
func (fakeProtection) CheckIntegrity(bool) int       { return 87 }
func (fakeProtection) Status() simulation.ProtectionStatus {
	return simulation.ProtectionStatus{Shield: true, Filter: true, Love: true, Integrity: 87}
}

type fakeSpeech struct {
	available bool
	result    string
	block     chan struct{}
}

func (f *fakeSpeech) Available() bool { return f.available }
func (f *fakeSpeech) ListenAndTranscribe(ctx context.Context) string {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "[Error captura cancelada]"
		}
	}
	return f.result
}

type fakeSpeaker struct {
	spoken chan string
}

func (f *fakeSpeaker) Speak(text string) error {
	f.spoken <- text
	return errors.New("no audio device")
}

// baseCollaborators returns deterministic collaborators and the sink they deliver to
func baseCollaborators() (Collaborators, *recordingSink) {
	sink := &recordingSink{}
	return Collaborators{
		Connection: &fakeConn{},
		Sentiment:  fakeSentiment{label: sentiment.Positive},
		Emotion:    fakeEmotion{emotion: sentiment.Joy},
		Knowledge:  &fakeKnowledge{answer: "Aunque mi conocimiento es vasto, ese tópico específico no está detallado en mi base actual."},
		Responder:  &fakeResponder{},
		Sink:       sink,
		Protection: fakeProtection{},
		Synchrony:  simulation.NewSynchrony(simulation.SeededRand(1)),
		Energy:     simulation.NewEnergyReader(simulation.SeededRand(2), nil),
		Astrology:  simulation.NewAstrology(simulation.SeededRand(3)),
	}, sink
}
