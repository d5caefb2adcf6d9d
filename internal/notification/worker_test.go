package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/joltersapp/homecontrol/internal/model"
)

// mockSender records sends and answers with a configurable response.
type mockSender struct {
	mu       sync.Mutex
	payloads []string
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	m.payloads = append(m.payloads, string(payload))
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(payload, sub, options)
	}
	return okResponse(), nil
}

func (m *mockSender) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.payloads...)
}

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(""))}
}

func goneResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusGone, Body: io.NopCloser(strings.NewReader(""))}
}

func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:notify_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.PushSubscription{}))
	return db
}

func TestEventBroadcastsToAllSubscriptions(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.PushSubscription{Endpoint: "https://push.example.com/a", P256DH: "k", Auth: "s"}).Error)
	require.NoError(t, db.Create(&model.PushSubscription{Endpoint: "https://push.example.com/b", P256DH: "k", Auth: "s"}).Error)

	wp := NewWorkerPool(1, db, &webpush.Options{})
	sender := &mockSender{}
	wp.sender = sender

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Event("Pool Pump", "Pump started, running 8.5 hours")

	assert.Eventually(t, func() bool {
		return len(sender.sent()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, sender.sent()[0], "Pool Pump: Pump started")
}

func TestExpiredSubscriptionIsDeleted(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.PushSubscription{Endpoint: "https://push.example.com/stale", P256DH: "k", Auth: "s"}).Error)

	wp := NewWorkerPool(1, db, &webpush.Options{})
	wp.sender = &mockSender{
		SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
			return goneResponse(), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Event("Sprinkler", "Watering cycle complete")

	assert.Eventually(t, func() bool {
		var count int64
		db.Model(&model.PushSubscription{}).Count(&count)
		return count == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventWithoutSubscriptionsIsQuiet(t *testing.T) {
	db := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})
	sender := &mockSender{}
	wp.sender = sender

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Event("Office Temperature", "Setpoint decrease to 72.0°F")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.sent())
}
