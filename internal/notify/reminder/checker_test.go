// internal/notify/reminder/checker_test.go
package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"notification-service/internal/common/logger"
	"notification-service/internal/models"
	"notification-service/internal/notify/channel"
	"notification-service/internal/notify/dispatch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSource struct {
	due []Due
	err error
}

func (m *MockSource) DueNotifications(_ context.Context, _ time.Time) ([]Due, error) {
	return m.due, m.err
}

type MockDeduper struct {
	seen map[string]bool
}

func (m *MockDeduper) ExistsRecent(_ context.Context, notificationType, recipient string, _ time.Duration) (bool, error) {
	return m.seen[notificationType+"|"+recipient], nil
}

type recordingSender struct {
	ch models.Channel

	mu    sync.Mutex
	sends []string
}

func (s *recordingSender) Channel() models.Channel { return s.ch }

func (s *recordingSender) Send(_ context.Context, recipient, _, _ string) channel.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, recipient)
	return channel.Result{Success: true, ProviderID: "prov-1"}
}

type nullTemplates struct{}

func (nullTemplates) Get(_ context.Context, _ string) (*models.NotificationTemplate, error) {
	return nil, nil
}

type nullLogWriter struct{}

func (nullLogWriter) Create(_ context.Context, _ *models.DeliveryLog) error { return nil }

func newTestChecker(source Source, dedup Deduper, sender channel.Sender) *Checker {
	log := logger.NewNoOpLogger()
	d := dispatch.New(nullTemplates{}, nullLogWriter{}, []channel.Sender{sender}, log)
	return NewChecker(source, dedup, d, time.Hour, 23*time.Hour, log)
}

// ==========================
// Sweep Tests
// ==========================

func TestChecker_Sweep_DispatchesDueItems(t *testing.T) {
	sender := &recordingSender{ch: models.ChannelEmail}
	source := &MockSource{due: []Due{
		{
			Type:           "agenda_due",
			RecipientType:  models.RecipientCustomer,
			RecipientEmail: "dana@example.com",
			Body:           "Your item is due",
		},
	}}
	checker := newTestChecker(source, &MockDeduper{}, sender)

	checker.sweep(context.Background())

	require.Len(t, sender.sends, 1)
	assert.Equal(t, "dana@example.com", sender.sends[0])
}

func TestChecker_Sweep_DedupSkipsRecentSends(t *testing.T) {
	sender := &recordingSender{ch: models.ChannelEmail}
	source := &MockSource{due: []Due{
		{
			Type:           "agenda_due",
			RecipientType:  models.RecipientCustomer,
			RecipientEmail: "dana@example.com",
			Body:           "Your item is due",
		},
	}}
	dedup := &MockDeduper{seen: map[string]bool{"agenda_due|dana@example.com": true}}
	checker := newTestChecker(source, dedup, sender)

	checker.sweep(context.Background())

	assert.Empty(t, sender.sends)
}

func TestChecker_Sweep_SkipsItemsWithoutRecipient(t *testing.T) {
	sender := &recordingSender{ch: models.ChannelEmail}
	source := &MockSource{due: []Due{
		{Type: "agenda_due", RecipientType: models.RecipientCustomer, Body: "No recipient"},
	}}
	checker := newTestChecker(source, &MockDeduper{}, sender)

	checker.sweep(context.Background())

	assert.Empty(t, sender.sends)
}

func TestChecker_Run_StopsOnCancel(t *testing.T) {
	checker := newTestChecker(&MockSource{}, &MockDeduper{}, &recordingSender{ch: models.ChannelEmail})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("checker did not stop after cancellation")
	}
}
