package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumisalon/salon-chat/internal/ai"
	"github.com/lumisalon/salon-chat/internal/catalog"
	"github.com/lumisalon/salon-chat/internal/vector"
)

type recordingProvider struct {
	reply      string
	failModels map[string]bool
	failAll    bool

	lastModel string
	lastMsgs  []ai.Message
	calls     int
}

func (p *recordingProvider) Chat(ctx context.Context, model string, messages []ai.Message) (string, error) {
	_ = ctx
	p.calls++
	p.lastModel = model
	p.lastMsgs = append([]ai.Message(nil), messages...)
	if p.failAll || p.failModels[model] {
		return "", errors.New("provider down")
	}
	if p.reply == "" {
		return "ok", nil
	}
	return p.reply, nil
}

type fakeEmbedder struct {
	vec []float64
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	_ = ctx
	_ = text
	return e.vec, e.err
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &Setting{}, &IndexJob{}, &catalog.Service{}, &vector.ServiceVector{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, prov ai.Provider, emb ai.Embedder, ix *vector.Index) *Service {
	t.Helper()
	reg := ai.NewRegistry()
	reg.Register("fake", prov)
	if ix == nil {
		ix = vector.NewIndex()
	}
	return NewService(NewRepo(db), catalog.NewRepo(db), ix, emb, reg, nil, Options{
		ProviderName:    "fake",
		DefaultModel:    "base-model",
		AvailableModels: []string{"base-model", "shiny-model"},
		TopK:            3,
	})
}

func seedConversation(t *testing.T, repo *Repo, sessionID string, turns int) {
	t.Helper()
	if err := repo.CreateSession(context.Background(), &Session{SessionID: sessionID}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 1; i <= turns; i++ {
		role := "user"
		if i%2 == 0 {
			role = "assistant"
		}
		m := &Message{SessionID: sessionID, Role: role, Content: fmt.Sprintf("turn-%d", i)}
		if err := repo.InsertMessage(context.Background(), m); err != nil {
			t.Fatalf("seed turn %d: %v", i, err)
		}
	}
}

func TestSendMessage_FullTranscriptInPrompt(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("down")}, nil)

	seedConversation(t, NewRepo(db), "long-session", 30)

	if _, err := svc.SendMessage(context.Background(), "long-session", "latest question", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	// system turn + all 30 stored turns + the new user turn
	if len(prov.lastMsgs) != 32 {
		t.Fatalf("expected 32 prompt turns, got %d", len(prov.lastMsgs))
	}
	if prov.lastMsgs[1].Content != "turn-1" {
		t.Fatalf("oldest turn missing from prompt, got %q first", prov.lastMsgs[1].Content)
	}
	last := prov.lastMsgs[len(prov.lastMsgs)-1]
	if last.Role != "user" || last.Content != "latest question" {
		t.Fatalf("expected the new user turn last, got %+v", last)
	}
}

func TestSendMessage_ContextWindowLimitsPrompt(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{}
	reg := ai.NewRegistry()
	reg.Register("fake", prov)
	svc := NewService(NewRepo(db), catalog.NewRepo(db), vector.NewIndex(), &fakeEmbedder{err: errors.New("down")}, reg, nil, Options{
		ProviderName:    "fake",
		DefaultModel:    "base-model",
		AvailableModels: []string{"base-model"},
		ContextWindow:   4,
	})

	seedConversation(t, NewRepo(db), "windowed", 10)

	if _, err := svc.SendMessage(context.Background(), "windowed", "latest question", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	// system turn + the 4 most recent turns, the new user turn among them
	if len(prov.lastMsgs) != 5 {
		t.Fatalf("expected 5 prompt turns, got %d", len(prov.lastMsgs))
	}
	if prov.lastMsgs[1].Content != "turn-8" {
		t.Fatalf("window should start at turn-8, got %q", prov.lastMsgs[1].Content)
	}
	last := prov.lastMsgs[len(prov.lastMsgs)-1]
	if last.Role != "user" || last.Content != "latest question" {
		t.Fatalf("expected the new user turn last, got %+v", last)
	}
}

func TestSendMessage_RepliesWhenMessageStoreFails(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrator().DropTable(&Message{}); err != nil {
		t.Fatalf("drop messages table: %v", err)
	}
	prov := &recordingProvider{reply: "still here"}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("down")}, nil)

	res, err := svc.SendMessage(context.Background(), "", "hello?", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply != "still here" {
		t.Fatalf("expected a reply despite persistence failure, got %q", res.Reply)
	}

	// the lost user turn still went out in-memory
	last := prov.lastMsgs[len(prov.lastMsgs)-1]
	if last.Role != "user" || last.Content != "hello?" {
		t.Fatalf("expected the in-memory user turn last, got %+v", last)
	}
}

func TestSendMessage_NewSessionAndTranscript(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "hello there"}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("no embedder")}, nil)

	res, err := svc.SendMessage(context.Background(), "", "Do you do balayage?", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.IsNewSession {
		t.Fatalf("expected new session")
	}
	if res.SessionID == "" {
		t.Fatalf("expected a minted session id")
	}
	if res.Reply != "hello there" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}

	// follow-up on the same id is not new, and history accumulates
	res2, err := svc.SendMessage(context.Background(), res.SessionID, "And how much?", "")
	if err != nil {
		t.Fatalf("send 2: %v", err)
	}
	if res2.IsNewSession {
		t.Fatalf("expected continuation of existing session")
	}
	if res2.SessionID != res.SessionID {
		t.Fatalf("session id changed: %s -> %s", res.SessionID, res2.SessionID)
	}

	msgs, err := svc.History(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []struct{ role, content string }{
		{"user", "Do you do balayage?"},
		{"assistant", "hello there"},
		{"user", "And how much?"},
		{"assistant", "hello there"},
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Content != w.content {
			t.Fatalf("msg %d: got role=%q content=%q", i, msgs[i].Role, msgs[i].Content)
		}
	}
}

func TestSendMessage_UnknownSessionIDMintsFreshID(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("down")}, nil)

	res, err := svc.SendMessage(context.Background(), "never-issued-token", "hi", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.IsNewSession {
		t.Fatalf("unknown session id should start a new session")
	}
	if res.SessionID == "never-issued-token" {
		t.Fatalf("expected server-minted id, got the unknown one back")
	}
}

func TestSendMessage_BlankMessageRejected(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &recordingProvider{}, &fakeEmbedder{}, nil)

	if _, err := svc.SendMessage(context.Background(), "", "   ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSendMessage_RepliesWhenEverythingFails(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{failAll: true}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("embed down")}, nil)

	res, err := svc.SendMessage(context.Background(), "", "anyone there?", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply != FallbackReply {
		t.Fatalf("expected fallback reply, got %q", res.Reply)
	}

	// both turns still recorded, user turn first
	msgs, err := svc.History(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Content != FallbackReply {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
}

func seedCatalog(t *testing.T, db *gorm.DB) *vector.Index {
	t.Helper()
	rows := []catalog.Service{
		{ID: "01SVCBALAYAGE0000000000000", Name: "Balayage", Category: "Color", Price: "$180",
			Description: "Hand-painted highlights.",
			Details:     catalog.Details{UnitPrice: "$60 per extra bowl"}},
		{ID: "01SVCMANICURE0000000000000", Name: "Gel Manicure", Category: "Nails", Price: "$45",
			Description: "Two-week wear gel polish."},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed service: %v", err)
		}
	}
	ix := vector.NewIndex()
	ix.Upsert("01SVCBALAYAGE0000000000000", []float64{1, 0, 0})
	ix.Upsert("01SVCMANICURE0000000000000", []float64{0, 1, 0})
	return ix
}

func TestSendMessage_RetrievedContextReachesPrompt(t *testing.T) {
	db := openTestDB(t)
	ix := seedCatalog(t, db)
	prov := &recordingProvider{}
	// query vector sits on the balayage axis
	svc := newTestService(t, db, prov, &fakeEmbedder{vec: []float64{1, 0, 0}}, ix)

	if _, err := svc.SendMessage(context.Background(), "", "do you do balayage?", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(prov.lastMsgs) == 0 || prov.lastMsgs[0].Role != "system" {
		t.Fatalf("expected a synthesized system turn first, got %+v", prov.lastMsgs)
	}
	sys := prov.lastMsgs[0].Content
	if !strings.Contains(sys, "Balayage") || !strings.Contains(sys, "$180") {
		t.Fatalf("system turn missing catalog context: %q", sys)
	}
	if !strings.Contains(sys, "$60 per extra bowl") {
		t.Fatalf("system turn missing detail line: %q", sys)
	}
	last := prov.lastMsgs[len(prov.lastMsgs)-1]
	if last.Role != "user" || last.Content != "do you do balayage?" {
		t.Fatalf("expected the user turn last, got %+v", last)
	}
}

func TestSendMessage_DanglingIndexIDIsDropped(t *testing.T) {
	db := openTestDB(t)
	ix := seedCatalog(t, db)
	// vector with no catalog row, closest to the query
	ix.Upsert("01SVCDELETED00000000000000", []float64{1, 0.1, 0})
	prov := &recordingProvider{}
	svc := newTestService(t, db, prov, &fakeEmbedder{vec: []float64{1, 0, 0}}, ix)

	res, err := svc.SendMessage(context.Background(), "", "anything fancy?", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply != "ok" {
		t.Fatalf("pipeline should succeed despite the dangling id, got %q", res.Reply)
	}
	if strings.Contains(prov.lastMsgs[0].Content, "01SVCDELETED") {
		t.Fatalf("dangling id leaked into the prompt")
	}
}

func TestSendMessage_RetriesOnDefaultModel(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{failModels: map[string]bool{"shiny-model": true}}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("down")}, nil)

	res, err := svc.SendMessage(context.Background(), "", "hi", "shiny-model")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply != "ok" {
		t.Fatalf("expected default-model retry to succeed, got %q", res.Reply)
	}
	if prov.lastModel != "base-model" {
		t.Fatalf("expected retry on base-model, last model was %q", prov.lastModel)
	}
	if prov.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", prov.calls)
	}
}

func TestSendMessage_UsesPersistedActiveModel(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("down")}, nil)

	if err := svc.SetActiveModel(context.Background(), "shiny-model"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), "", "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if prov.lastModel != "shiny-model" {
		t.Fatalf("expected persisted model to be used, got %q", prov.lastModel)
	}

	// explicit override still wins
	if _, err := svc.SendMessage(context.Background(), "", "hi", "base-model"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if prov.lastModel != "base-model" {
		t.Fatalf("expected override to win, got %q", prov.lastModel)
	}
}

func TestActiveModel_DefaultsWithoutSetting(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &recordingProvider{}, &fakeEmbedder{}, nil)

	m, err := svc.ActiveModel(context.Background())
	if err != nil {
		t.Fatalf("active model: %v", err)
	}
	if m != "base-model" {
		t.Fatalf("expected configured default, got %q", m)
	}
}

func TestSetActiveModel_RejectsUnknown(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &recordingProvider{}, &fakeEmbedder{}, nil)

	if err := svc.SetActiveModel(context.Background(), "nope"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestClear_IdempotentAndPreservesSessionID(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{}
	svc := newTestService(t, db, prov, &fakeEmbedder{err: errors.New("down")}, nil)

	// clearing an id that never existed succeeds
	if err := svc.Clear(context.Background(), "ghost"); err != nil {
		t.Fatalf("clear unknown: %v", err)
	}

	res, err := svc.SendMessage(context.Background(), "", "hi", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := svc.Clear(context.Background(), res.SessionID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	// the id survives the clear with an empty transcript
	msgs, err := svc.History(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("history after clear: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(msgs))
	}

	res2, err := svc.SendMessage(context.Background(), res.SessionID, "again", "")
	if err != nil {
		t.Fatalf("send after clear: %v", err)
	}
	if res2.IsNewSession || res2.SessionID != res.SessionID {
		t.Fatalf("cleared session should keep its id")
	}
}

// missingCache behaves like the redis store under a dead redis: every
// read is a miss, writes are accepted silently.
type missingCache struct {
	sets        int
	invalidates int
}

func (c *missingCache) GetTranscript(ctx context.Context, sessionID string) ([]Message, bool) {
	return nil, false
}

func (c *missingCache) SetTranscript(ctx context.Context, sessionID string, msgs []Message) {
	c.sets++
}

func (c *missingCache) Invalidate(ctx context.Context, sessionID string) {
	c.invalidates++
}

func TestHistory_CacheMissFallsThroughToDB(t *testing.T) {
	db := openTestDB(t)
	prov := &recordingProvider{reply: "noted"}
	cache := &missingCache{}
	reg := ai.NewRegistry()
	reg.Register("fake", prov)
	svc := NewService(NewRepo(db), catalog.NewRepo(db), vector.NewIndex(), &fakeEmbedder{err: errors.New("down")}, reg, cache, Options{
		ProviderName:    "fake",
		DefaultModel:    "base-model",
		AvailableModels: []string{"base-model"},
	})

	res, err := svc.SendMessage(context.Background(), "", "are you open sundays?", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if cache.invalidates == 0 {
		t.Fatalf("expected writes to invalidate the cached transcript")
	}

	msgs, err := svc.History(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "are you open sundays?" || msgs[1].Content != "noted" {
		t.Fatalf("cache miss should serve the DB transcript, got %+v", msgs)
	}
	if cache.sets != 1 {
		t.Fatalf("expected the DB read to repopulate the cache, sets=%d", cache.sets)
	}
}

func TestHistory_UnknownSession(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, &recordingProvider{}, &fakeEmbedder{}, nil)

	if _, err := svc.History(context.Background(), "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
