package companion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	"github.com/jordanhubbard/inanna/internal/eventlog"
	"github.com/jordanhubbard/inanna/internal/knowledge"
	"github.com/jordanhubbard/inanna/internal/sentiment"
	"github.com/jordanhubbard/inanna/internal/telemetry"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

func onlyResponse(t *testing.T, sink *recordingSink) messages.Response {
	t.Helper()
	got := sink.responses()
	require.Len(t, got, 1, "exactly one response per message")
	return got[0]
}

func TestDisconnectedReplyLeavesHistoryUntouched(t *testing.T) {
	collab, sink := baseCollaborators()
	conn := &fakeConn{}
	conn.down.Store(true)
	collab.Connection = conn
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "hola", "s1", "o")

	resp := onlyResponse(t, sink)
	assert.Equal(t, ReplyDisconnected, resp.Message)
	assert.Equal(t, messages.TagError, resp.Tag)
	assert.Empty(t, c.History())
}

func TestKnowledgeMissUsesResponder(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
	}{
		{"default phrase", knowledge.DefaultResponse, nil},
		{"kb unavailable", "KB no disponible.", nil},
		{"no exact info", "No tengo información exacta sobre eso.", nil},
		{"query error", "", errors.New("disk gone")},
		{"not loaded", "Archivo KB 'kb.json' no encontrado.", knowledge.ErrNotLoaded},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			collab, sink := baseCollaborators()
			responder := &fakeResponder{}
			collab.Responder = responder
			collab.Knowledge = &fakeKnowledge{answer: tc.answer, err: tc.err}
			c := newCore(t, collab)

			c.processText(context.Background(), messages.TypeText, "qué es la luna", "s1", "o")

			resp := onlyResponse(t, sink)
			assert.Equal(t, int32(1), responder.calls.Load())
			assert.Equal(t, "respuesta para alegría de Luz", resp.Message)
			assert.Equal(t, messages.TagAssistant, resp.Tag)
			assert.Equal(t, sentiment.Joy, c.Snapshot().IAEmotion, "companion mirrors the user's emotion")
		})
	}
}

func TestKnowledgeHit(t *testing.T) {
	collab, sink := baseCollaborators()
	responder := &fakeResponder{}
	collab.Responder = responder
	collab.Knowledge = &fakeKnowledge{answer: "Mi conocimiento indica que la luna está creciente."}
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "luna", "s1", "o")

	resp := onlyResponse(t, sink)
	assert.Equal(t, "Mi conocimiento indica que la luna está creciente.", resp.Message)
	assert.Equal(t, int32(0), responder.calls.Load())
	assert.Equal(t, "interés", c.Snapshot().IAEmotion)

	collab.Knowledge.(*fakeKnowledge).answer = "cuarzo\n * amatista"
	c.processText(context.Background(), messages.TypeText, "cristales", "s1", "o")
	assert.Equal(t, sentiment.Calm, c.Snapshot().IAEmotion)
}

func TestStatusReport(t *testing.T) {
	for _, phrase := range []string{"status report", "Dame el estado actual", "quiero un REPORTE"} {
		t.Run(phrase, func(t *testing.T) {
			collab, sink := baseCollaborators()
			c := newCore(t, collab)

			c.processText(context.Background(), messages.TypeText, phrase, "s1", "o")

			resp := onlyResponse(t, sink)
			assert.Equal(t, messages.TagSystem, resp.Tag)
			assert.Contains(t, resp.Message, "Estado")
			assert.Contains(t, resp.Message, "Integridad: 87%")

			lines := strings.Split(resp.Message, "\n")
			require.GreaterOrEqual(t, len(lines), 6)
			assert.Equal(t, "Reporte de Estado Inanna Sophia (Solicitado por Luz):", lines[0])
			assert.Equal(t, "  Conexión Espiritual: Conectada (Energía: 88%)", lines[1])
			assert.Equal(t, "  Emoción Usuario (Inferida): Alegría (Sentimiento: Positive)", lines[3])
			assert.Equal(t, "  Protección Espiritual: Escudo ON (Integridad: 87%)", lines[5])
			assert.True(t, strings.HasPrefix(lines[6], "  Energía Usuario (Estimada): "))
		})
	}
}

func TestForgetCommand(t *testing.T) {
	collab, sink := baseCollaborators()
	c := newCore(t, collab)
	c.state.SetIAEmotion("interés")

	c.processText(context.Background(), messages.TypeText, "Olvídalo por favor", "s1", "o")

	resp := onlyResponse(t, sink)
	assert.Equal(t, "Entendido, Luz. Olvidando la línea de pensamiento actual.", resp.Message)
	assert.Equal(t, messages.TagAssistant, resp.Tag)
	assert.Equal(t, sentiment.Calm, c.Snapshot().IAEmotion)
}

func TestAstrologyCommand(t *testing.T) {
	collab, sink := baseCollaborators()
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "¿cuál es mi signo?", "s1", "o")
	resp := onlyResponse(t, sink)
	assert.True(t, strings.HasPrefix(resp.Message, "Tu signo solar es Capricornio."), resp.Message)

	collab2, sink2 := baseCollaborators()
	collab2.Astrology = nil
	c2 := newCore(t, collab2)
	c2.processText(context.Background(), messages.TypeText, "horóscopo", "s1", "o")
	assert.Contains(t, onlyResponse(t, sink2).Message, "No puedo determinar")
}

func TestEnergyCommand(t *testing.T) {
	collab, sink := baseCollaborators()
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "¿cómo está mi energía?", "s1", "o")
	resp := onlyResponse(t, sink)
	assert.True(t, strings.HasPrefix(resp.Message, "Percibo tu energía vital "), resp.Message)
	assert.Contains(t, resp.Message, "/100).")
}

func TestClassifierPanicStillResponds(t *testing.T) {
	collab, sink := baseCollaborators()
	collab.Sentiment = fakeSentiment{panic: true}
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "hola", "s1", "o")

	resp := onlyResponse(t, sink)
	assert.NotEqual(t, messages.TagError, resp.Tag)
	assert.Equal(t, sentiment.Neutral, c.Snapshot().UserSentiment)
	assert.Len(t, c.History(), 2)
}

func TestPipelinePanicBecomesCriticalReply(t *testing.T) {
	collab, sink := baseCollaborators()
	collab.Responder = &fakeResponder{panic: true}
	events := eventlog.NewMemory(10)
	collab.Events = events
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "algo", "s1", "o")

	resp := onlyResponse(t, sink)
	assert.Equal(t, ReplyCritical, resp.Message)
	assert.Equal(t, messages.TagError, resp.Tag)

	ev := events.Recent(1)[0]
	assert.Equal(t, messages.EventPipelineError, ev.Type)
	assert.Equal(t, "CoreSystem", ev.Source)
	assert.Equal(t, "responder exploded", ev.Details["error"])
}

func TestInteractionEventRecorded(t *testing.T) {
	collab, _ := baseCollaborators()
	events := eventlog.NewMemory(10)
	collab.Events = events
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "hola", "s1", "console_input")

	ev := events.Recent(1)[0]
	assert.Equal(t, messages.EventInteraction, ev.Type)
	assert.Equal(t, "CoreInput(console_input)", ev.Source)
	assert.Equal(t, "hola", ev.Details["input"])
	assert.Equal(t, sentiment.Positive, ev.Details["sent_usr"])
	assert.Equal(t, sentiment.Joy, ev.Details["emo_usr"])
	assert.Equal(t, sentiment.Joy, ev.Details["emo_ia"])
	assert.Equal(t, sentiment.Joy, ev.Context.UserEmotion)
	require.NotNil(t, ev.Context.SyncLevel)
}

func TestSpeakerCalledWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Speech.TTSEnabled = true
	collab, sink := baseCollaborators()
	speaker := &fakeSpeaker{spoken: make(chan string, 1)}
	collab.Speaker = speaker
	c, err := New(cfg, collab)
	require.NoError(t, err)

	c.processText(context.Background(), messages.TypeText, "hola", "s1", "o")

	select {
	case text := <-speaker.spoken:
		assert.Equal(t, onlyResponse(t, sink).Message, text)
	case <-time.After(2 * time.Second):
		t.Fatal("speaker not called")
	}
}

func TestVoiceTranscriptOrigin(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	collab, sink := baseCollaborators()
	c := newCore(t, collab)
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.NoError(t, c.SubmitVoice("hola", "s1", "microfono"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))

	resp := onlyResponse(t, sink)
	assert.Equal(t, "microfono_transcrito", resp.Origin)
	assert.Equal(t, "s1", resp.SessionID)
}

func TestIsKnowledgeMiss(t *testing.T) {
	assert.True(t, isKnowledgeMiss(""))
	assert.True(t, isKnowledgeMiss("La base de conocimientos externa no contiene eso"))
	assert.True(t, isKnowledgeMiss("No encontré información relevante."))
	assert.False(t, isKnowledgeMiss("Indica un tópico válido."))
}

type panickingEvents struct {
	NopEventLog
}

func (panickingEvents) Append(eventType string, _ map[string]any, _ string, _ eventlog.Annotations) {
	if eventType == messages.EventInteraction {
		panic("event log offline")
	}
}

func TestEventLogPanicKeepsReplyAndHistory(t *testing.T) {
	collab, sink := baseCollaborators()
	collab.Events = panickingEvents{}
	c := newCore(t, collab)

	c.processText(context.Background(), messages.TypeText, "hola", "s1", "o")

	resp := onlyResponse(t, sink)
	assert.NotEqual(t, ReplyCritical, resp.Message)
	assert.Equal(t, messages.TagAssistant, resp.Tag)

	turns := c.History()
	require.Len(t, turns, 2)
	assert.Equal(t, resp.Message, turns[1].Text, "history holds the reply that was delivered")
}

type typeCounter struct {
	noop.Int64Counter
	mu    sync.Mutex
	types []string
}

func (c *typeCounter) Add(_ context.Context, _ int64, opts ...metric.AddOption) {
	v, _ := metric.NewAddConfig(opts).Attributes().Value(attribute.Key("type"))
	c.mu.Lock()
	c.types = append(c.types, v.AsString())
	c.mu.Unlock()
}

func TestInstrumentsRecordEnvelopeType(t *testing.T) {
	counter := &typeCounter{}
	inst := &telemetry.Instruments{
		MessagesProcessed: counter,
		PipelineLatency:   noop.Float64Histogram{},
		JobsExecuted:      noop.Int64Counter{},
	}
	collab, _ := baseCollaborators()
	c, err := New(testConfig(t), collab, WithInstruments(inst))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.handleText(ctx, messages.Text("hola", "s1", "o")))
	require.NoError(t, c.handleVoice(ctx, messages.VoiceTranscript("hola", "s1", "microfono")))

	assert.Equal(t, []string{string(messages.TypeText), string(messages.TypeVoiceTranscript)}, counter.types)
}
