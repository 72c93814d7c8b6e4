package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumisalon/salon-chat/internal/ai"
	"github.com/lumisalon/salon-chat/internal/catalog"
	"github.com/lumisalon/salon-chat/internal/vector"
)

// TranscriptCache is the optional read-through cache in front of the
// message table. A nil cache disables caching.
type TranscriptCache interface {
	GetTranscript(ctx context.Context, sessionID string) ([]Message, bool)
	SetTranscript(ctx context.Context, sessionID string, msgs []Message)
	Invalidate(ctx context.Context, sessionID string)
}

type Options struct {
	ProviderName    string
	DefaultModel    string
	AvailableModels []string
	TopK            int
	// ContextWindow caps how many stored turns go into the prompt.
	// 0 sends the full transcript.
	ContextWindow   int
	CompleteTimeout time.Duration
}

// Service is the retrieval-augmented orchestrator. Each call is an
// independent unit of work; there is no per-session lock, so concurrent
// sends on one session id can interleave turns (last write wins on the
// transcript order).
type Service struct {
	repo     *Repo
	catalog  *catalog.Repo
	index    *vector.Index
	embedder ai.Embedder
	registry *ai.Registry
	cache    TranscriptCache
	opts     Options
}

func NewService(repo *Repo, catalogRepo *catalog.Repo, index *vector.Index, embedder ai.Embedder, registry *ai.Registry, cache TranscriptCache, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.ContextWindow < 0 {
		opts.ContextWindow = 0
	}
	if opts.CompleteTimeout <= 0 {
		opts.CompleteTimeout = 60 * time.Second
	}
	if len(opts.AvailableModels) == 0 {
		opts.AvailableModels = []string{opts.DefaultModel}
	}
	return &Service{
		repo:     repo,
		catalog:  catalogRepo,
		index:    index,
		embedder: embedder,
		registry: registry,
		cache:    cache,
		opts:     opts,
	}
}

type SendResult struct {
	SessionID    string
	Reply        string
	IsNewSession bool
}

// SendMessage runs the pipeline for one user message: resolve session,
// durably append the user turn, retrieve catalog context (best effort),
// assemble the prompt, generate, append the assistant turn. Retrieval
// and persistence failures degrade; only a blank message is an error.
func (s *Service) SendMessage(ctx context.Context, sessionID, text, modelOverride string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	// 1) resolve session; absent, empty or unknown id means new session
	isNew := false
	if sessionID != "" {
		if _, err := s.repo.GetSessionBySessionID(ctx, sessionID); err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("chat: session lookup failed session_id=%s err=%v", sessionID, err)
			}
			sessionID = ""
		}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
		isNew = true
		if err := s.repo.CreateSession(ctx, &Session{SessionID: sessionID}); err != nil {
			log.Printf("chat: create session failed session_id=%s err=%v", sessionID, err)
		}
	}

	// 2) append the user turn before any external call, so generation
	// failure can never lose user input
	userMsg := &Message{SessionID: sessionID, Role: "user", Content: text}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		log.Printf("chat: persist user turn failed session_id=%s err=%v", sessionID, err)
	}
	s.invalidate(ctx, sessionID)

	// 3-5) embed -> query -> hydrate; any failure degrades to no context
	contextBlock := s.retrieveContext(ctx, text)

	// 6) assemble: synthesized system turn + stored history (ASC)
	msgs := s.assemble(ctx, sessionID, text, contextBlock)

	// 7) complete, retrying once on the default model
	model := s.resolveModel(ctx, modelOverride)
	reply := s.generate(ctx, model, msgs)

	// 8) append the assistant turn, best effort
	assistantMsg := &Message{SessionID: sessionID, Role: "assistant", Content: reply}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		log.Printf("chat: persist assistant turn failed session_id=%s err=%v", sessionID, err)
	}
	s.invalidate(ctx, sessionID)

	return &SendResult{SessionID: sessionID, Reply: reply, IsNewSession: isNew}, nil
}

func (s *Service) retrieveContext(ctx context.Context, query string) string {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("chat: embed failed err=%v", err)
		return ""
	}
	matches := s.index.Query(vec, s.opts.TopK)
	if len(matches) == 0 {
		return ""
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	services, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		log.Printf("chat: hydrate failed err=%v", err)
		return ""
	}
	return catalog.ContextBlock(services)
}

func (s *Service) assemble(ctx context.Context, sessionID, userText, contextBlock string) []ai.Message {
	msgs := []ai.Message{{Role: "system", Content: systemTurn(contextBlock)}}

	var history []Message
	var err error
	if s.opts.ContextWindow > 0 {
		var recentDesc []Message
		recentDesc, err = s.repo.ListRecentMessagesDesc(ctx, sessionID, s.opts.ContextWindow)
		for i := len(recentDesc) - 1; i >= 0; i-- {
			history = append(history, recentDesc[i])
		}
	} else {
		history, err = s.repo.ListMessages(ctx, sessionID)
	}
	if err != nil {
		log.Printf("chat: list history failed session_id=%s err=%v", sessionID, err)
		history = nil
	}
	for _, m := range history {
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}

	// If the user-turn write was lost, the in-memory turn still goes out.
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != userText {
		msgs = append(msgs, ai.Message{Role: "user", Content: userText})
	}
	return msgs
}

func (s *Service) resolveModel(ctx context.Context, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	m, err := s.ActiveModel(ctx)
	if err != nil {
		log.Printf("chat: read active model failed err=%v", err)
		return s.opts.DefaultModel
	}
	return m
}

func (s *Service) generate(ctx context.Context, model string, msgs []ai.Message) string {
	provider, err := s.registry.Get(s.opts.ProviderName)
	if err != nil {
		log.Printf("chat: resolve provider failed err=%v", err)
		return FallbackReply
	}

	reply, err := s.chatOnce(ctx, provider, model, msgs)
	if err == nil {
		return reply
	}
	log.Printf("chat: completion failed model=%s err=%v", model, err)

	// A stale model selection must not fail the request: retry once on
	// the fixed default before giving up.
	if model != s.opts.DefaultModel {
		reply, err = s.chatOnce(ctx, provider, s.opts.DefaultModel, msgs)
		if err == nil {
			return reply
		}
		log.Printf("chat: default-model retry failed model=%s err=%v", s.opts.DefaultModel, err)
	}
	return FallbackReply
}

func (s *Service) chatOnce(ctx context.Context, provider ai.Provider, model string, msgs []ai.Message) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.CompleteTimeout)
	defer cancel()
	reply, err := provider.Chat(cctx, model, msgs)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", errors.New("empty completion")
	}
	return reply, nil
}

// History returns the full transcript in chronological order.
// Cleared sessions return an empty transcript, not ErrSessionNotFound.
func (s *Service) History(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.repo.GetSessionBySessionID(ctx, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if s.cache != nil {
		if msgs, ok := s.cache.GetTranscript(ctx, sessionID); ok {
			return msgs, nil
		}
	}
	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetTranscript(ctx, sessionID, msgs)
	}
	return msgs, nil
}

// Clear removes all turns for the session. The session id itself is
// preserved, and clearing an unknown id succeeds: the only observable
// contract is that no history remains.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.repo.ClearMessages(ctx, sessionID); err != nil {
		return err
	}
	s.invalidate(ctx, sessionID)
	return nil
}

// ActiveModel reads the persisted process-wide model, falling back to
// the configured default when no row exists.
func (s *Service) ActiveModel(ctx context.Context) (string, error) {
	v, err := s.repo.GetSetting(ctx, SettingActiveModel)
	if err != nil {
		return "", err
	}
	if v == "" {
		return s.opts.DefaultModel, nil
	}
	return v, nil
}

func (s *Service) SetActiveModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	found := false
	for _, m := range s.opts.AvailableModels {
		if m == model {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownModel
	}
	return s.repo.SetSetting(ctx, SettingActiveModel, model)
}

func (s *Service) AvailableModels() []string {
	return append([]string(nil), s.opts.AvailableModels...)
}

func (s *Service) invalidate(ctx context.Context, sessionID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, sessionID)
	}
}
