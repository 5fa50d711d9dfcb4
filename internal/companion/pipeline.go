package companion

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jordanhubbard/inanna/internal/responses"
	"github.com/jordanhubbard/inanna/internal/sentiment"
	"github.com/jordanhubbard/inanna/pkg/messages"
)

// Fixed replies
const (
	ReplyDisconnected = "Mis disculpas, estoy experimentando dificultades internas para procesar. Intenta reconectar mi esencia espiritual (conceptual)."
	ReplyCritical     = "He encontrado una dificultad crítica al procesar tu solicitud. Intentaré recuperarme."
)

// Knowledge answers containing any of these are treated as misses
var knowledgeMisses = []string{
	"no tengo información exacta",
	"no encontré información relevante",
	"base de conocimientos externa no contiene",
	"kb no disponible",
	"no está detallado en mi base actual",
}

const knowledgeHitMarker = "mi conocimiento indica"

func (c *Core) handleText(ctx context.Context, env *messages.Envelope) error {
	c.processText(ctx, env.Type, env.Payload, env.SessionID, env.Origin)
	return nil
}

func (c *Core) handleVoice(ctx context.Context, env *messages.Envelope) error {
	c.processText(ctx, env.Type, env.Payload, env.SessionID, env.Origin+messages.TranscriptSuffix)
	return nil
}

// processText runs the text pipeline and delivers exactly one response
func (c *Core) processText(ctx context.Context, msgType messages.MessageType, text, sessionID, origin string) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "core.process_text", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("origin", origin),
	))
	defer span.End()

	reply, tag := c.respond(text, origin)
	span.SetAttributes(attribute.String("response.tag", tag))

	c.deliver(ctx, messages.NewResponse(reply, tag, sessionID, origin))

	elapsed := time.Since(start)
	c.metrics.RecordResponse(origin, tag, elapsed.Seconds())
	c.instruments.RecordMessage(ctx, string(msgType), tag, elapsed)
}

// respond computes the reply for text. A panic anywhere becomes the fixed
// critical reply.
func (c *Core) respond(text, origin string) (reply, tag string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Core] Error: text pipeline panic: %v\n%s", r, debug.Stack())
			c.collab.Events.Append(messages.EventPipelineError, map[string]any{
				"error": fmt.Sprint(r),
				"input": text,
			}, sourceCore, c.annotations())
			reply, tag = ReplyCritical, messages.TagError
		}
	}()

	normalized := strings.ToLower(strings.TrimSpace(text))

	if !c.collab.Connection.IsConnected() {
		log.Printf("[Core] Warning: connection unavailable, refusing input from %s", origin)
		return ReplyDisconnected, messages.TagError
	}

	userSentiment := c.classify(text)
	userEmotion := c.infer(userSentiment, text)
	c.state.SetUser(userSentiment, userEmotion)

	c.updateSimulations(text, userSentiment, userEmotion)

	iaEmotion := c.state.IAEmotion()
	var ok bool
	reply, tag, ok = c.command(normalized, &iaEmotion)
	if !ok {
		reply, iaEmotion = c.answer(text, userEmotion)
		tag = messages.TagAssistant
	}
	c.state.SetReply(reply, iaEmotion)

	c.history.AddExchange(text, reply, userEmotion, userSentiment, iaEmotion)
	c.metrics.SetHistoryLength(c.history.Len())

	// The exchange is already in history; later failures must not change the reply.
	c.bestEffort("events", func() {
		c.collab.Events.Append(messages.EventInteraction, map[string]any{
			"input":        text,
			"respuesta_ia": reply,
			"sent_usr":     userSentiment,
			"emo_usr":      userEmotion,
			"emo_ia":       iaEmotion,
		}, "CoreInput("+origin+")", c.annotations())
	})

	if c.config().Speech.TTSEnabled {
		c.bestEffort("speaker", func() { c.speak(reply) })
	}
	return reply, tag
}

func (c *Core) classify(text string) (label string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Core] Error: sentiment classifier panic: %v", r)
			c.metrics.RecordCollaboratorError("sentiment")
			label = sentiment.Neutral
		}
	}()
	label, err := c.collab.Sentiment.Classify(text)
	if err != nil || label == "" {
		if err != nil {
			log.Printf("[Core] Warning: sentiment classification failed: %v", err)
			c.metrics.RecordCollaboratorError("sentiment")
		}
		return sentiment.Neutral
	}
	return label
}

func (c *Core) infer(userSentiment, text string) (emotion string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Core] Error: emotion classifier panic: %v", r)
			c.metrics.RecordCollaboratorError("emotion")
			emotion = sentiment.Calm
		}
	}()
	emotion, err := c.collab.Emotion.Infer(userSentiment, text)
	if err != nil || emotion == "" {
		if err != nil {
			log.Printf("[Core] Warning: emotion inference failed: %v", err)
			c.metrics.RecordCollaboratorError("emotion")
		}
		return sentiment.Calm
	}
	return emotion
}

// updateSimulations feeds the interaction to the simulations. Each call is
// isolated; a failure only costs that simulation's update.
func (c *Core) updateSimulations(text, userSentiment, userEmotion string) {
	c.bestEffort("energy", func() {
		c.state.SetEnergy(c.collab.Energy.Estimate(userSentiment))
	})
	c.bestEffort("synchrony", func() {
		c.collab.Synchrony.Update(c.state.IAEmotion(), userEmotion, c.collab.Sentiment.Score(text), c.collab.Connection.Energy())
	})
	c.bestEffort("protection", func() {
		c.collab.Protection.HandleNegative(userSentiment, userEmotion)
		c.metrics.SetIntegrity(c.collab.Protection.Status().Integrity)
	})
}

func (c *Core) bestEffort(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Core] Warning: %s update failed: %v", name, r)
			c.metrics.RecordCollaboratorError(name)
		}
	}()
	fn()
}

// answer consults the knowledge base and falls back to the response bank.
// It returns the reply and the companion's resulting emotion.
func (c *Core) answer(text, userEmotion string) (string, string) {
	resp, hit := c.queryKnowledge(text)
	c.metrics.RecordKnowledgeLookup(hit)
	if hit {
		if strings.Contains(strings.ToLower(resp), knowledgeHitMarker) {
			return resp, "interés"
		}
		return resp, sentiment.Calm
	}

	creator := c.config().General.CreatorName
	return c.collab.Responder.Generate(userEmotion, responses.Context{UserName: creator, CreatorName: creator}), userEmotion
}

func (c *Core) queryKnowledge(text string) (resp string, hit bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Core] Error: knowledge query panic: %v", r)
			c.metrics.RecordCollaboratorError("knowledge")
			resp, hit = "", false
		}
	}()
	resp, err := c.collab.Knowledge.Query(text)
	if err != nil {
		log.Printf("[Core] debug: knowledge query failed: %v", err)
		return "", false
	}
	return resp, !isKnowledgeMiss(resp)
}

func isKnowledgeMiss(resp string) bool {
	lower := strings.ToLower(resp)
	if strings.TrimSpace(lower) == "" {
		return true
	}
	for _, s := range knowledgeMisses {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// speak reads reply aloud on its own goroutine
func (c *Core) speak(reply string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Core] Error: speaker panic: %v", r)
			}
		}()
		if err := c.collab.Speaker.Speak(reply); err != nil {
			log.Printf("[Core] Warning: speech output failed: %v", err)
		}
	}()
}
