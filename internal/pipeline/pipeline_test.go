package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"waresponder/internal/ai"
	"waresponder/internal/domain"
	"waresponder/internal/gateway"
	"waresponder/internal/store"
)

type fakeStore struct {
	contacts   map[string]string
	inbox      map[string]store.InboundInsert
	updates    []store.InboundReplyUpdate
	trigger    *store.Trigger
	history    []store.Exchange
	knowledge  []store.KnowledgeEntry
	aiSettings store.AISettings
	gwSettings store.GatewaySettings
	ownerPhone string
	insertErr  error
	updateErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts:   map[string]string{},
		inbox:      map[string]store.InboundInsert{},
		gwSettings: store.GatewaySettings{APIURL: "https://gw.test", APIKey: "k"},
	}
}

func (f *fakeStore) UpsertContact(ctx context.Context, in store.ContactUpsert) error {
	if cur := f.contacts[in.Phone]; cur == "" {
		f.contacts[in.Phone] = in.Name
	}
	return nil
}

func (f *fakeStore) GetContactName(ctx context.Context, tenantID, phone string) (string, error) {
	return f.contacts[phone], nil
}

func (f *fakeStore) InsertInbound(ctx context.Context, in store.InboundInsert) (bool, error) {
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, dup := f.inbox[in.MessageID]; dup {
		return false, nil
	}
	f.inbox[in.MessageID] = in
	return true, nil
}

func (f *fakeStore) UpdateInboundReply(ctx context.Context, in store.InboundReplyUpdate) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, in)
	return nil
}

func (f *fakeStore) RecentHistory(ctx context.Context, tenantID, phone string, limit int) ([]store.Exchange, error) {
	return f.history, nil
}

func (f *fakeStore) FindTrigger(ctx context.Context, tenantID, text string) (store.Trigger, bool, error) {
	if f.trigger != nil && strings.EqualFold(text, f.trigger.Keyword) {
		return *f.trigger, true, nil
	}
	return store.Trigger{}, false, nil
}

func (f *fakeStore) KnowledgeEntries(ctx context.Context, tenantID string) ([]store.KnowledgeEntry, error) {
	return f.knowledge, nil
}

func (f *fakeStore) GetAISettings(ctx context.Context, tenantID string) (store.AISettings, error) {
	return f.aiSettings, nil
}

func (f *fakeStore) GetGatewaySettings(ctx context.Context, tenantID string) (store.GatewaySettings, error) {
	return f.gwSettings, nil
}

func (f *fakeStore) GetOwnerPhone(ctx context.Context, tenantID string) (string, error) {
	return f.ownerPhone, nil
}

type fakeGateway struct {
	sent []gateway.SendRequest
	err  error
}

func (f *fakeGateway) Send(ctx context.Context, cfg store.GatewaySettings, req gateway.SendRequest) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, req)
	return nil
}

type fakeAI struct {
	completion string
	prompts    []ai.Prompt
}

func (f *fakeAI) Generate(ctx context.Context, cfg store.AISettings, p ai.Prompt) string {
	f.prompts = append(f.prompts, p)
	return f.completion
}

func newPipeline(st Store, gw Sender, replier Replier) *Pipeline {
	p := New(st, gw, replier)
	p.IDGen = func() string { return "inb_test" }
	return p
}

func textPayload(text string) domain.InboundPayload {
	return domain.InboundPayload{
		MessageType: domain.TypeText,
		FromID:      "628123@s.whatsapp.net",
		FromName:    "Ana",
		MessageText: text,
		MessageID:   "m1",
	}
}

func TestIneligiblePayloadsAreIgnoredWithoutPersistence(t *testing.T) {
	cases := []domain.InboundPayload{
		{IsGroup: true, MessageType: domain.TypeText, FromID: "1", MessageID: "a"},
		{IsFromMe: true, MessageType: domain.TypeText, FromID: "1", MessageID: "b"},
		{MessageType: "sticker", FromID: "1", MessageID: "c"},
		{MessageType: "audio", FromID: "1", MessageID: "d"},
	}
	for _, in := range cases {
		st := newFakeStore()
		p := newPipeline(st, &fakeGateway{}, &fakeAI{})
		status, err := p.Handle(context.Background(), "t1", in)
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if status != domain.StatusIgnored {
			t.Fatalf("want ignored, got %s", status)
		}
		if len(st.inbox) != 0 {
			t.Fatalf("ignored payload must not write an inbox row")
		}
	}
}

func TestInboxRecordedWithNormalizedPhoneBeforeReply(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{}
	p := newPipeline(st, gw, &fakeAI{completion: "hi"})

	if _, err := p.Handle(context.Background(), "t1", textPayload("hello")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	row, ok := st.inbox["m1"]
	if !ok {
		t.Fatalf("inbox row missing")
	}
	if row.Phone != "628123" {
		t.Fatalf("phone not normalized: %q", row.Phone)
	}
	if row.Status != string(domain.StatusReceived) {
		t.Fatalf("initial status %q", row.Status)
	}
}

func TestDuplicateMessageIDIsIgnored(t *testing.T) {
	st := newFakeStore()
	p := newPipeline(st, &fakeGateway{}, &fakeAI{completion: "hi"})

	if _, err := p.Handle(context.Background(), "t1", textPayload("hello")); err != nil {
		t.Fatalf("first: %v", err)
	}
	status, err := p.Handle(context.Background(), "t1", textPayload("hello"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if status != domain.StatusIgnored {
		t.Fatalf("duplicate delivery should be ignored, got %s", status)
	}
}

func TestTriggerWinsOverAI(t *testing.T) {
	st := newFakeStore()
	st.trigger = &store.Trigger{Keyword: "info", MessageType: "text", Content: "Hi {NAME}, your number is {PHONE}"}
	st.contacts["628123"] = "Ana"
	gw := &fakeGateway{}
	replier := &fakeAI{completion: "ai answer"}
	p := newPipeline(st, gw, replier)

	status, err := p.Handle(context.Background(), "t1", textPayload("  INFO "))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != domain.StatusRepliedTrigger {
		t.Fatalf("want replied_trigger, got %s", status)
	}
	if len(replier.prompts) != 0 {
		t.Fatalf("ai must not run when a trigger matched and dispatched")
	}
	if len(gw.sent) != 1 || gw.sent[0].Body != "Hi Ana, your number is 628123" {
		t.Fatalf("rendered dispatch %+v", gw.sent)
	}
	last := st.updates[len(st.updates)-1]
	if last.Status != string(domain.StatusRepliedTrigger) || last.ReplyMessage != gw.sent[0].Body {
		t.Fatalf("inbox update %+v", last)
	}
}

func TestSubstringDoesNotMatchTrigger(t *testing.T) {
	st := newFakeStore()
	st.trigger = &store.Trigger{Keyword: "info", MessageType: "text", Content: "x"}
	gw := &fakeGateway{}
	p := newPipeline(st, gw, &fakeAI{})

	status, err := p.Handle(context.Background(), "t1", textPayload("info please"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != domain.StatusNoReply {
		t.Fatalf("want no_reply, got %s", status)
	}
}

func TestTriggerDispatchFailureFallsThroughToAI(t *testing.T) {
	st := newFakeStore()
	st.trigger = &store.Trigger{Keyword: "info", MessageType: "text", Content: "x"}

	gw := &fakeGateway{err: errors.New("gateway down")}
	replier := &fakeAI{completion: "ai answer"}
	p := newPipeline(st, gw, replier)

	status, err := p.Handle(context.Background(), "t1", textPayload("info"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	// the AI dispatch also fails against the dead gateway, so the message
	// ends as no_reply, but the AI must have been consulted
	if status != domain.StatusNoReply {
		t.Fatalf("want no_reply, got %s", status)
	}
	if len(replier.prompts) != 1 {
		t.Fatalf("ai should run after trigger dispatch failure")
	}
}

func TestEmptyCompletionMeansNoReplyAndNoDispatch(t *testing.T) {
	st := newFakeStore()
	gw := &fakeGateway{}
	p := newPipeline(st, gw, &fakeAI{completion: ""})

	status, err := p.Handle(context.Background(), "t1", textPayload("anything"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != domain.StatusNoReply {
		t.Fatalf("want no_reply, got %s", status)
	}
	if len(gw.sent) != 0 {
		t.Fatalf("no outbound dispatch expected, got %+v", gw.sent)
	}
	last := st.updates[len(st.updates)-1]
	if last.Status != string(domain.StatusNoReply) {
		t.Fatalf("inbox update %+v", last)
	}
}

func TestDocumentSkipsAI(t *testing.T) {
	st := newFakeStore()
	replier := &fakeAI{completion: "should not be used"}
	p := newPipeline(st, &fakeGateway{}, replier)

	in := textPayload("some file")
	in.MessageType = domain.TypeDocument
	status, err := p.Handle(context.Background(), "t1", in)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != domain.StatusNoReply {
		t.Fatalf("want no_reply, got %s", status)
	}
	if len(replier.prompts) != 0 {
		t.Fatalf("ai must not run for document messages")
	}
}

func TestAIReplyPathRecordsOutcome(t *testing.T) {
	st := newFakeStore()
	st.aiSettings = store.AISettings{Vendor: "openai", APIKey: "k", SystemPrompt: "sell shoes"}
	st.history = []store.Exchange{{Question: "q0", Answer: "a0"}}
	st.knowledge = []store.KnowledgeEntry{{Question: "kq", Answer: "ka"}}
	gw := &fakeGateway{}
	replier := &fakeAI{completion: "the answer"}
	p := newPipeline(st, gw, replier)

	status, err := p.Handle(context.Background(), "t1", textPayload("question"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if status != domain.StatusRepliedAI {
		t.Fatalf("want replied_ai, got %s", status)
	}
	if len(gw.sent) != 1 || gw.sent[0].Type != domain.TypeText || gw.sent[0].Body != "the answer" {
		t.Fatalf("dispatch %+v", gw.sent)
	}

	prompt := replier.prompts[0]
	if prompt.System != "sell shoes" || len(prompt.History) != 1 || prompt.Knowledge == "" {
		t.Fatalf("prompt %+v", prompt)
	}
}

func TestInboxInsertFailureIsFatal(t *testing.T) {
	st := newFakeStore()
	st.insertErr = errors.New("db down")
	p := newPipeline(st, &fakeGateway{}, &fakeAI{})

	if _, err := p.Handle(context.Background(), "t1", textPayload("x")); err == nil {
		t.Fatalf("inbox insert failure must abort the pipeline")
	}
}

func TestInboxUpdateFailureAfterTriggerReplyIsFatal(t *testing.T) {
	st := newFakeStore()
	st.trigger = &store.Trigger{Keyword: "info", MessageType: domain.TypeText, Content: "hello"}
	st.updateErr = errors.New("db down")
	p := newPipeline(st, &fakeGateway{}, &fakeAI{})

	status, err := p.Handle(context.Background(), "t1", textPayload("info"))
	if err == nil {
		t.Fatalf("inbox update failure must abort the pipeline, got status %q", status)
	}
}

func TestInboxUpdateFailureAfterAIReplyIsFatal(t *testing.T) {
	st := newFakeStore()
	st.aiSettings = store.AISettings{Vendor: "openai", APIKey: "k"}
	st.updateErr = errors.New("db down")
	p := newPipeline(st, &fakeGateway{}, &fakeAI{completion: "an answer"})

	status, err := p.Handle(context.Background(), "t1", textPayload("anything"))
	if err == nil {
		t.Fatalf("inbox update failure must abort the pipeline, got status %q", status)
	}
}
