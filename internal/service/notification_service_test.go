package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domainErrors "github.com/felixhub/workshop/internal/domain/errors"
	"github.com/felixhub/workshop/internal/domain/notification"
	"github.com/felixhub/workshop/internal/domain/order"
	"github.com/felixhub/workshop/internal/infrastructure/observability"
	"github.com/felixhub/workshop/internal/infrastructure/telegram"
	"github.com/felixhub/workshop/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

type notificationFixture struct {
	svc     *NotificationService
	bot     *testutil.MockBotClient
	repo    *testutil.MockNotificationRepository
	metrics *observability.Metrics
}

func allEnabled() NotificationSettings {
	return NotificationSettings{
		AdminRecipients: []string{"100", "200"},
		EnableAdmin:     true,
		EnableMechanic:  true,
		EnableAlerts:    true,
		OrderLink: func(id int64) string {
			return fmt.Sprintf("https://felix.example/#/admin/orders/%d", id)
		},
	}
}

func setupNotificationService(settings NotificationSettings) notificationFixture {
	bot := testutil.NewMockBotClient()
	repo := testutil.NewMockNotificationRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	dedup := NewDeduplicator(repo, 15*time.Minute, zerolog.Nop())
	svc := NewNotificationService(bot, dedup, settings, metrics, zerolog.Nop())
	return notificationFixture{svc: svc, bot: bot, repo: repo, metrics: metrics}
}

func storedOrder(id int64, telegramID string) *order.Order {
	o := testutil.NewTestOrder(telegramID)
	o.ID = id
	return o
}

func recipients(sent []testutil.SentMessage) []string {
	out := make([]string, 0, len(sent))
	for _, m := range sent {
		out = append(out, m.Recipient)
	}
	return out
}

// --- Admin new order ---

func TestNotifyAdminsNewOrder_SendsToEveryAdmin(t *testing.T) {
	f := setupNotificationService(allEnabled())
	o := storedOrder(42, "555")

	ok, err := f.svc.NotifyAdminsNewOrder(context.Background(), o)
	require.NoError(t, err)
	assert.True(t, ok)

	sent := f.bot.Sent()
	assert.Equal(t, []string{"100", "200"}, recipients(sent))
	assert.Contains(t, sent[0].Message.Text, "Новый заказ №42")
	assert.Contains(t, sent[0].Message.Text, `href="https://felix.example/#/admin/orders/42"`)
	assert.Equal(t, "42", sent[0].Message.SubjectID)

	records := f.repo.Records()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, notification.TypeAdminNewOrder, r.Type)
		assert.True(t, r.Success)
	}
	assert.Equal(t, float64(2), promtest.ToFloat64(f.metrics.NotificationsTotal.WithLabelValues("admin_new_order", "success")))
}

func TestNotifyAdminsNewOrder_EscapesUserInput(t *testing.T) {
	f := setupNotificationService(allEnabled())
	o := storedOrder(1, "555")
	o.MechanicName = "<b>Bob</b> & Co"
	o.SelectedParts = []string{"<script>"}

	_, err := f.svc.NotifyAdminsNewOrder(context.Background(), o)
	require.NoError(t, err)

	text := f.bot.Sent()[0].Message.Text
	assert.Contains(t, text, "&lt;b&gt;Bob&lt;/b&gt; &amp; Co")
	assert.Contains(t, text, "&lt;script&gt;")
	assert.NotContains(t, text, "<script>")
}

func TestNotifyAdminsNewOrder_DisabledIsNotAFailure(t *testing.T) {
	settings := allEnabled()
	settings.EnableAdmin = false
	f := setupNotificationService(settings)

	ok, err := f.svc.NotifyAdminsNewOrder(context.Background(), storedOrder(1, "555"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.bot.Sent())
	assert.Empty(t, f.repo.Records())
}

func TestNotifyAdminsNewOrder_NoAdminsConfigured(t *testing.T) {
	settings := allEnabled()
	settings.AdminRecipients = nil
	f := setupNotificationService(settings)

	ok, err := f.svc.NotifyAdminsNewOrder(context.Background(), storedOrder(1, "555"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, domainErrors.ErrNotConfigured)
	assert.Empty(t, f.bot.Sent())
}

func TestNotifyAdminsNewOrder_OneAdminSucceeding_IsSuccess(t *testing.T) {
	f := setupNotificationService(allEnabled())
	f.bot.SendFunc = func(ctx context.Context, recipient string, msg telegram.Message) (bool, error) {
		if recipient == "100" {
			return false, domainErrors.ErrRetriesExhausted
		}
		return true, nil
	}

	ok, err := f.svc.NotifyAdminsNewOrder(context.Background(), storedOrder(1, "555"))
	require.NoError(t, err)
	assert.True(t, ok)

	records := f.repo.Records()
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.True(t, records[1].Success)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.NotificationsTotal.WithLabelValues("admin_new_order", "failed")))
}

func TestNotifyAdminsNewOrder_AllAdminsFail(t *testing.T) {
	f := setupNotificationService(allEnabled())
	f.bot.SendFunc = func(ctx context.Context, recipient string, msg telegram.Message) (bool, error) {
		return false, domainErrors.ErrCircuitOpen
	}

	ok, err := f.svc.NotifyAdminsNewOrder(context.Background(), storedOrder(1, "555"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, domainErrors.ErrCircuitOpen)
	assert.ErrorContains(t, err, "recipient 200")
}

func TestNotifyAdminsNewOrder_RepeatIsSuppressed(t *testing.T) {
	f := setupNotificationService(allEnabled())
	o := storedOrder(9, "555")

	ok, err := f.svc.NotifyAdminsNewOrder(context.Background(), o)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.svc.NotifyAdminsNewOrder(context.Background(), o)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, f.bot.Sent(), 2, "second round must not reach the sender")
	assert.Equal(t, float64(2), promtest.ToFloat64(f.metrics.NotificationsSuppressed.WithLabelValues("admin_new_order")))
}

func TestNotifyAdminsNewOrder_RetriesAfterFailure(t *testing.T) {
	settings := allEnabled()
	settings.AdminRecipients = []string{"100"}
	f := setupNotificationService(settings)

	fail := true
	f.bot.SendFunc = func(ctx context.Context, recipient string, msg telegram.Message) (bool, error) {
		if fail {
			return false, errors.New("timeout")
		}
		return true, nil
	}
	o := storedOrder(3, "555")

	ok, _ := f.svc.NotifyAdminsNewOrder(context.Background(), o)
	assert.False(t, ok)

	fail = false
	ok, err := f.svc.NotifyAdminsNewOrder(context.Background(), o)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, f.bot.Sent(), 2)
}

// --- Order status ---

func TestNotifyOrderStatusChanged_CustomerMessages(t *testing.T) {
	tests := []struct {
		name     string
		next     order.Status
		wantText string
		wantType notification.Type
	}{
		{name: "ready", next: order.StatusReady, wantText: "Заказ №5 готов", wantType: notification.TypeOrderReady},
		{name: "issued", next: order.StatusIssued, wantText: "Стало: <b>Выдан</b>", wantType: notification.TypeOrderIssued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := allEnabled()
			settings.EnableAdmin = false
			f := setupNotificationService(settings)

			ok, err := f.svc.NotifyOrderStatusChanged(context.Background(), storedOrder(5, "555"), order.StatusInProgress, tt.next)
			require.NoError(t, err)
			assert.True(t, ok)

			sent := f.bot.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, "555", sent[0].Recipient)
			assert.Contains(t, sent[0].Message.Text, tt.wantText)

			records := f.repo.Records()
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantType, records[0].Type)
		})
	}
}

func TestNotifyOrderStatusChanged_NoCustomerMessageForEarlyStatuses(t *testing.T) {
	settings := allEnabled()
	settings.EnableAdmin = false
	f := setupNotificationService(settings)

	for _, next := range []order.Status{order.StatusNew, order.StatusInProgress} {
		ok, err := f.svc.NotifyOrderStatusChanged(context.Background(), storedOrder(5, "555"), order.StatusReady, next)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Empty(t, f.bot.Sent())
}

func TestNotifyOrderStatusChanged_MirrorsToAdmins(t *testing.T) {
	f := setupNotificationService(allEnabled())

	ok, err := f.svc.NotifyOrderStatusChanged(context.Background(), storedOrder(5, "555"), order.StatusReady, order.StatusIssued)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"555", "100", "200"}, recipients(f.bot.Sent()))
}

func TestNotifyOrderStatusChanged_OwnerWithoutChatIsSkipped(t *testing.T) {
	settings := allEnabled()
	settings.EnableAdmin = false
	f := setupNotificationService(settings)

	ok, err := f.svc.NotifyOrderStatusChanged(context.Background(), storedOrder(5, ""), order.StatusInProgress, order.StatusReady)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.bot.Sent())
}

func TestNotifyOrderStatusChanged_CustomerFailure(t *testing.T) {
	settings := allEnabled()
	settings.EnableAdmin = false
	f := setupNotificationService(settings)
	f.bot.SendFunc = func(ctx context.Context, recipient string, msg telegram.Message) (bool, error) {
		return false, domainErrors.ErrPermanentDelivery
	}

	ok, err := f.svc.NotifyOrderStatusChanged(context.Background(), storedOrder(5, "555"), order.StatusInProgress, order.StatusReady)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domainErrors.ErrPermanentDelivery)
}

// --- Mechanic status ---

func TestNotifyMechanicStatusChanged(t *testing.T) {
	f := setupNotificationService(allEnabled())

	ok, err := f.svc.NotifyMechanicStatusChanged(context.Background(), storedOrder(8, "555"), order.WorkNew, order.WorkInProgress)
	require.NoError(t, err)
	assert.True(t, ok)

	sent := f.bot.Sent()
	assert.Equal(t, []string{"100", "200"}, recipients(sent))
	assert.Contains(t, sent[0].Message.Text, "Стало: <b>В работе</b>")
	assert.Equal(t, "8:in_progress", sent[0].Message.SubjectID)
}

func TestNotifyMechanicStatusChanged_Disabled(t *testing.T) {
	settings := allEnabled()
	settings.EnableMechanic = false
	f := setupNotificationService(settings)

	ok, err := f.svc.NotifyMechanicStatusChanged(context.Background(), storedOrder(8, "555"), order.WorkNew, order.WorkPaused)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.bot.Sent())
}

// --- System alerts ---

func TestNotifySystemAlert_DeduplicatedPerType(t *testing.T) {
	f := setupNotificationService(allEnabled())
	alert := Alert{Severity: SeverityCritical, Type: "failure_spike", Message: "12 failures"}

	ok, err := f.svc.NotifySystemAlert(context.Background(), alert)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.NotifySystemAlert(context.Background(), alert)
	require.NoError(t, err)
	assert.True(t, ok)

	sent := f.bot.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Message.Text, "CRITICAL")
	assert.Contains(t, sent[0].Message.Text, "<code>failure_spike</code>")
}

func TestNotificationService_SkipLogsCarryCorrelation(t *testing.T) {
	var logs bytes.Buffer
	settings := allEnabled()
	settings.AdminRecipients = nil
	settings.EnableAlerts = false
	repo := testutil.NewMockNotificationRepository()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	svc := NewNotificationService(testutil.NewMockBotClient(), NewDeduplicator(repo, time.Minute, logger), settings, metrics, logger)
	ctx := observability.WithCorrelationID(context.Background(), "corr-77")

	ok, err := svc.NotifySystemAlert(ctx, Alert{Severity: SeverityCritical, Type: "failure_spike"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.NotifyAdminsNewOrder(ctx, storedOrder(3, "555"))
	assert.ErrorIs(t, err, domainErrors.ErrNotConfigured)
	assert.False(t, ok)

	out := logs.String()
	assert.Contains(t, out, `"message":"alert notifications disabled"`)
	assert.Contains(t, out, `"message":"no admin recipients configured"`)
	assert.Equal(t, 2, strings.Count(out, `"correlation_id":"corr-77"`))
}
