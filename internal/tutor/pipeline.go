package tutor

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Delamole/botesp/internal/brain"
	"github.com/Delamole/botesp/internal/events"
	"github.com/Delamole/botesp/internal/history"
	"github.com/Delamole/botesp/internal/observability"
	"github.com/Delamole/botesp/internal/speech"
)

// Sender delivers replies back to the chat platform.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendVoice(ctx context.Context, chatID int64, path string) error
}

// Outcome classifies a processed turn.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeApology         Outcome = "apology"
	OutcomeEmptyTranscript Outcome = "empty_transcript"
)

// Input is one inbound user turn: raw text or a recorded voice clip.
// Exactly one of the fields is set.
type Input struct {
	Text  string
	Audio []byte
}

// Result is the final reply for a turn. Text is always non-empty; callers
// never handle a distinct "no reply" case.
type Result struct {
	TurnID  string
	Text    string
	Outcome Outcome
}

// Config carries pipeline collaborators and settings.
type Config struct {
	Store        history.Store
	Brain        brain.Client
	Recognizer   speech.Recognizer
	Synthesizer  speech.Synthesizer
	Sender       Sender
	Hub          *events.Hub
	Metrics      *observability.Metrics
	Stages       *observability.StageWindow
	Pending      *PendingReplies
	Window       int
	Language     string
	VoiceReplies bool
	Logger       *zap.Logger
}

// Pipeline turns one inbound user message into a reply: resolve input to
// text, fetch the context window, call the model, persist the exchange,
// deliver (voice when enabled, text otherwise).
type Pipeline struct {
	store        history.Store
	brain        brain.Client
	recognizer   speech.Recognizer
	synthesizer  speech.Synthesizer
	sender       Sender
	hub          *events.Hub
	metrics      *observability.Metrics
	stages       *observability.StageWindow
	pending      *PendingReplies
	window       int
	language     string
	voiceReplies bool
	log          *zap.Logger
}

func NewPipeline(cfg Config) *Pipeline {
	if cfg.Window <= 0 {
		cfg.Window = 6
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "es-ES"
	}
	if cfg.Hub == nil {
		cfg.Hub = events.NewHub()
	}
	if cfg.Pending == nil {
		cfg.Pending = NewPendingReplies(0, 0)
	}
	if cfg.Stages == nil {
		cfg.Stages = observability.NewStageWindow(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pipeline{
		store:        cfg.Store,
		brain:        cfg.Brain,
		recognizer:   cfg.Recognizer,
		synthesizer:  cfg.Synthesizer,
		sender:       cfg.Sender,
		hub:          cfg.Hub,
		metrics:      cfg.Metrics,
		stages:       cfg.Stages,
		pending:      cfg.Pending,
		window:       cfg.Window,
		language:     cfg.Language,
		voiceReplies: cfg.VoiceReplies,
		log:          cfg.Logger,
	}
	if cfg.Metrics != nil {
		cfg.Pending.SetChangeHook(func(size int) {
			cfg.Metrics.PendingReplies.Set(float64(size))
		})
	}
	return p
}

// HandleTurn processes one turn and delivers the reply.
func (p *Pipeline) HandleTurn(ctx context.Context, chatID, userID int64, in Input) Result {
	result := p.ProcessTurn(ctx, userID, in)
	p.Respond(ctx, chatID, userID, result.TurnID, result.Text)
	return result
}

// ProcessTurn resolves input to text, composes the persona-conditioned
// context, calls the model and persists the exchange. It always returns a
// non-empty reply; failures degrade to fixed fallback text.
func (p *Pipeline) ProcessTurn(ctx context.Context, userID int64, in Input) Result {
	turnID := uuid.NewString()
	start := time.Now()
	p.hub.Publish(events.TurnEvent{Type: events.TypeTurnStarted, UserID: userID, TurnID: turnID})

	text := strings.TrimSpace(in.Text)
	if len(in.Audio) > 0 {
		sttStart := time.Now()
		transcript, err := p.recognizer.Transcribe(ctx, in.Audio)
		p.stages.Observe(observability.StageSTT, time.Since(sttStart))
		if err != nil {
			p.log.Warn("transcription failed", zap.Int64("user_id", userID), zap.Error(err))
			p.countProviderError("stt", "unavailable")
		}
		text = strings.TrimSpace(transcript)
		if text != "" {
			p.hub.Publish(events.TurnEvent{Type: events.TypeTranscript, UserID: userID, TurnID: turnID, Text: text})
		}
	}

	// An inaudible clip or blank message short-circuits: no model call, no
	// persistence.
	if text == "" {
		p.countTurn(OutcomeEmptyTranscript)
		p.hub.Publish(events.TurnEvent{Type: events.TypeTurnFailed, UserID: userID, TurnID: turnID, Detail: "empty_transcript"})
		return Result{TurnID: turnID, Text: repeatReply, Outcome: OutcomeEmptyTranscript}
	}

	histStart := time.Now()
	window, err := p.store.Recent(ctx, userID, p.window)
	p.stages.Observe(observability.StageHistoryRead, time.Since(histStart))
	if err != nil {
		// Degrade to an empty window; the turn proceeds without context.
		p.log.Warn("history read failed", zap.Int64("user_id", userID), zap.Error(err))
		p.countStoreFailure("read")
		window = nil
	}

	msgs := make([]brain.Message, 0, len(window)+2)
	msgs = append(msgs, brain.Message{Role: brain.RoleSystem, Text: personaPrompt})
	for _, t := range window {
		role := brain.RoleAssistant
		if t.Role == history.RoleUser {
			role = brain.RoleUser
		}
		msgs = append(msgs, brain.Message{Role: role, Text: t.Content})
	}
	msgs = append(msgs, brain.Message{Role: brain.RoleUser, Text: text})

	llmStart := time.Now()
	reply, err := p.brain.Complete(ctx, userID, msgs)
	p.stages.Observe(observability.StageLLM, time.Since(llmStart))
	if err != nil {
		code := "unavailable"
		if errors.Is(err, brain.ErrEmptyCompletion) {
			code = "empty_completion"
		}
		p.log.Error("model call failed", zap.Int64("user_id", userID), zap.String("code", code), zap.Error(err))
		p.countProviderError("llm", code)
		p.countTurn(OutcomeApology)
		p.hub.Publish(events.TurnEvent{Type: events.TypeTurnFailed, UserID: userID, TurnID: turnID, Detail: code})
		// The failed exchange leaves no trace in history.
		return Result{TurnID: turnID, Text: apologyReply, Outcome: OutcomeApology}
	}

	persistStart := time.Now()
	if err := p.store.AppendExchange(ctx, userID, text, reply); err != nil {
		// Swallowed by contract; operators see the data loss here.
		p.log.Error("persist exchange failed", zap.Int64("user_id", userID), zap.Error(err))
		p.countStoreFailure("append")
	}
	p.stages.Observe(observability.StagePersist, time.Since(persistStart))

	p.pending.Set(userID, reply)
	p.countTurn(OutcomeOK)
	if p.metrics != nil {
		p.metrics.ObserveTurnLatency(time.Since(start))
	}
	p.stages.Observe(observability.StageTurnTotal, time.Since(start))
	p.hub.Publish(events.TurnEvent{Type: events.TypeReply, UserID: userID, TurnID: turnID, Text: reply})
	return Result{TurnID: turnID, Text: reply, Outcome: OutcomeOK}
}

// Respond delivers the reply, preferring a voice note when enabled.
// Synthesis or voice-send failure silently downgrades to text; delivery
// never surfaces an error to the user.
func (p *Pipeline) Respond(ctx context.Context, chatID, userID int64, turnID, text string) {
	if p.voiceReplies && p.synthesizer != nil {
		if p.respondVoice(ctx, chatID, userID, turnID, text) {
			return
		}
		if p.metrics != nil {
			p.metrics.DeliveryDowngrades.Inc()
		}
	}

	if err := p.sender.SendMessage(ctx, chatID, text); err != nil {
		p.log.Error("text delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
		p.countProviderError("telegram", "send_message")
		return
	}
	p.hub.Publish(events.TurnEvent{Type: events.TypeDelivered, UserID: userID, TurnID: turnID, Detail: "text"})
}

func (p *Pipeline) respondVoice(ctx context.Context, chatID, userID int64, turnID, text string) bool {
	ttsStart := time.Now()
	path, err := p.synthesizer.Synthesize(ctx, text, p.language)
	p.stages.Observe(observability.StageTTS, time.Since(ttsStart))
	if err != nil {
		p.log.Warn("speech synthesis failed", zap.Int64("user_id", userID), zap.Error(err))
		p.countProviderError("tts", "unavailable")
		return false
	}
	// Remove the voice note whether or not the upload succeeds.
	defer os.Remove(path)

	if err := p.sender.SendVoice(ctx, chatID, path); err != nil {
		p.log.Warn("voice delivery failed", zap.Int64("chat_id", chatID), zap.Error(err))
		p.countProviderError("telegram", "send_voice")
		return false
	}
	p.hub.Publish(events.TurnEvent{Type: events.TypeDelivered, UserID: userID, TurnID: turnID, Detail: "voice"})
	return true
}

// Greeting is the /start reply.
func (p *Pipeline) Greeting() string { return greetingReply }

// VoiceError is the reply for a voice clip that could not be retrieved.
func (p *Pipeline) VoiceError() string { return voiceErrorReply }

// Transcript returns the text of the most recent reply for /texto. The
// entry is consumed by the read.
func (p *Pipeline) Transcript(userID int64) string {
	if text, ok := p.pending.Take(userID); ok {
		return text
	}
	return noTranscriptReply
}

func (p *Pipeline) countTurn(outcome Outcome) {
	if p.metrics != nil {
		p.metrics.TurnsTotal.WithLabelValues(string(outcome)).Inc()
	}
}

func (p *Pipeline) countProviderError(provider, code string) {
	if p.metrics != nil {
		p.metrics.ProviderErrors.WithLabelValues(provider, code).Inc()
	}
}

func (p *Pipeline) countStoreFailure(op string) {
	if p.metrics != nil {
		p.metrics.StoreFailures.WithLabelValues(op).Inc()
	}
}
