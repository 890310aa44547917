package worker

import (
	"context"
	"testing"
	"time"

	"waresponder/internal/gateway"
	"waresponder/internal/store"
)

type fakeStore struct {
	items   []store.QueueItem
	logs    map[string]*store.BroadcastLog
	gw      store.GatewaySettings
	sent    []string
	failed  map[string]string
	resched []store.QueueItemReschedule
}

func newFakeStore(items ...store.QueueItem) *fakeStore {
	return &fakeStore{
		items:  items,
		logs:   map[string]*store.BroadcastLog{},
		gw:     store.GatewaySettings{APIURL: "https://gw.test", APIKey: "k"},
		failed: map[string]string{},
	}
}

func (f *fakeStore) DueQueueItems(ctx context.Context, logID string, limit int) ([]store.QueueItem, error) {
	if limit > len(f.items) {
		limit = len(f.items)
	}
	out := make([]store.QueueItem, 0, limit)
	for _, it := range f.items[:limit] {
		if logID == "" || it.LogID == logID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkQueueItemSent(ctx context.Context, id string, now time.Time) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeStore) MarkQueueItemFailed(ctx context.Context, in store.QueueItemFailure) error {
	f.failed[in.ID] = in.ErrorMessage
	return nil
}

func (f *fakeStore) RescheduleQueueItem(ctx context.Context, in store.QueueItemReschedule) error {
	f.resched = append(f.resched, in)
	return nil
}

func (f *fakeStore) GetBroadcastLog(ctx context.Context, id string) (store.BroadcastLog, bool, error) {
	l, ok := f.logs[id]
	if !ok {
		return store.BroadcastLog{}, false, nil
	}
	return *l, true, nil
}

func (f *fakeStore) GetGatewaySettings(ctx context.Context, tenantID string) (store.GatewaySettings, error) {
	return f.gw, nil
}

func (f *fakeStore) IncrementCampaignSent(ctx context.Context, logID string) (store.CampaignProgress, error) {
	l := f.logs[logID]
	l.TotalSent++
	return f.progress(l), nil
}

func (f *fakeStore) IncrementCampaignFailed(ctx context.Context, logID string) (store.CampaignProgress, error) {
	l := f.logs[logID]
	l.TotalFailed++
	return f.progress(l), nil
}

func (f *fakeStore) progress(l *store.BroadcastLog) store.CampaignProgress {
	done := l.TotalSent+l.TotalFailed >= l.TotalRecipients
	if done {
		l.Status = "completed"
	}
	return store.CampaignProgress{
		TotalRecipients: l.TotalRecipients,
		TotalSent:       l.TotalSent,
		TotalFailed:     l.TotalFailed,
		Completed:       done,
	}
}

type fakeGateway struct {
	err   error
	calls int
}

func (f *fakeGateway) Send(ctx context.Context, cfg store.GatewaySettings, req gateway.SendRequest) error {
	f.calls++
	return f.err
}

func fastProcessor(st Store, gw Sender) *Processor {
	p := NewProcessor(st, gw, nil)
	p.DelayMin = 0
	p.DelayMax = 0
	return p
}

func item(id, logID string, retries int) store.QueueItem {
	return store.QueueItem{ID: id, LogID: logID, Phone: "6281", Message: "hi", Status: "scheduled", RetryCount: retries}
}

func TestSuccessfulSendMarksSentAndCounts(t *testing.T) {
	st := newFakeStore(item("q1", "c1", 0))
	st.logs["c1"] = &store.BroadcastLog{ID: "c1", TenantID: "t1", TotalRecipients: 2, Status: "processing"}

	p := fastProcessor(st, &fakeGateway{})
	n, err := p.Run(context.Background(), "")
	if err != nil || n != 1 {
		t.Fatalf("run: n=%d err=%v", n, err)
	}
	if len(st.sent) != 1 || st.sent[0] != "q1" {
		t.Fatalf("sent %v", st.sent)
	}
	if st.logs["c1"].TotalSent != 1 || st.logs["c1"].Status == "completed" {
		t.Fatalf("campaign %+v", st.logs["c1"])
	}
}

func TestTransientFailureReschedulesWithBackoff(t *testing.T) {
	st := newFakeStore(item("q1", "c1", 0))
	st.logs["c1"] = &store.BroadcastLog{ID: "c1", TenantID: "t1", TotalRecipients: 1, Status: "processing"}

	gw := &fakeGateway{err: &gateway.SendError{Status: 500, Permanent: false}}
	p := fastProcessor(st, gw)
	if _, err := p.Run(context.Background(), ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.resched) != 1 {
		t.Fatalf("expected reschedule, got failed=%v resched=%v", st.failed, st.resched)
	}
	if !st.resched[0].NextAttempt.After(time.Now().Add(4 * time.Minute)) {
		t.Fatalf("reschedule too soon: %v", st.resched[0].NextAttempt)
	}
	if st.logs["c1"].TotalFailed != 0 {
		t.Fatalf("transient failure must not count against the campaign")
	}
}

func TestPermanentFailureIsTerminal(t *testing.T) {
	st := newFakeStore(item("q1", "c1", 0))
	st.logs["c1"] = &store.BroadcastLog{ID: "c1", TenantID: "t1", TotalRecipients: 1, Status: "processing"}

	gw := &fakeGateway{err: &gateway.SendError{Status: 400, Permanent: true}}
	p := fastProcessor(st, gw)
	if _, err := p.Run(context.Background(), ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := st.failed["q1"]; !ok {
		t.Fatalf("expected terminal failure, got resched=%v", st.resched)
	}
	if st.logs["c1"].TotalFailed != 1 {
		t.Fatalf("failed counter %d", st.logs["c1"].TotalFailed)
	}
	if st.logs["c1"].Status != "completed" {
		t.Fatalf("campaign should complete when sent+failed covers recipients")
	}
}

func TestRetryExhaustionFailsExactlyOnce(t *testing.T) {
	st := newFakeStore(item("q1", "c1", 3))
	st.logs["c1"] = &store.BroadcastLog{ID: "c1", TenantID: "t1", TotalRecipients: 5, Status: "processing"}

	gw := &fakeGateway{err: &gateway.SendError{Status: 503, Permanent: false}}
	p := fastProcessor(st, gw)
	if _, err := p.Run(context.Background(), ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.resched) != 0 {
		t.Fatalf("exhausted item must not be rescheduled")
	}
	if st.logs["c1"].TotalFailed != 1 {
		t.Fatalf("total_failed must increment exactly once, got %d", st.logs["c1"].TotalFailed)
	}
}

func TestMissingCampaignFailsItemWithoutCounting(t *testing.T) {
	st := newFakeStore(item("q1", "ghost", 0))
	p := fastProcessor(st, &fakeGateway{})
	if _, err := p.Run(context.Background(), ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if st.failed["q1"] != "campaign not found" {
		t.Fatalf("failed %v", st.failed)
	}
}

func TestMissingGatewayCredentialsFailsItem(t *testing.T) {
	st := newFakeStore(item("q1", "c1", 0))
	st.logs["c1"] = &store.BroadcastLog{ID: "c1", TenantID: "t1", TotalRecipients: 1, Status: "processing"}
	st.gw = store.GatewaySettings{}

	gw := &fakeGateway{}
	p := fastProcessor(st, gw)
	if _, err := p.Run(context.Background(), ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("no dispatch expected without credentials")
	}
	if st.failed["q1"] != "gateway credentials missing" {
		t.Fatalf("failed %v", st.failed)
	}
	if st.logs["c1"].TotalFailed != 1 {
		t.Fatalf("failed counter %d", st.logs["c1"].TotalFailed)
	}
}

func TestRunScopedToOneCampaign(t *testing.T) {
	st := newFakeStore(item("q1", "c1", 0), item("q2", "c2", 0))
	st.logs["c1"] = &store.BroadcastLog{ID: "c1", TenantID: "t1", TotalRecipients: 1, Status: "processing"}
	st.logs["c2"] = &store.BroadcastLog{ID: "c2", TenantID: "t1", TotalRecipients: 1, Status: "processing"}

	p := fastProcessor(st, &fakeGateway{})
	n, err := p.Run(context.Background(), "c2")
	if err != nil || n != 1 {
		t.Fatalf("run: n=%d err=%v", n, err)
	}
	if len(st.sent) != 1 || st.sent[0] != "q2" {
		t.Fatalf("sent %v", st.sent)
	}
}
