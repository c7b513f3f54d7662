package internal

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-backend/config"
	"reservation-backend/internal/api"
	"reservation-backend/internal/db"
	"reservation-backend/internal/model"
	"reservation-backend/internal/notification"
	"reservation-backend/internal/store"
)

type client struct {
	t    *testing.T
	base string
}

func (c client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp.StatusCode, decoded
}

func (c client) available() []any {
	c.t.Helper()
	code, body := c.do(http.MethodGet, "/available-time-slots", nil)
	require.Equal(c.t, http.StatusOK, code)
	return body["available_time_slots"].([]any)
}

// subscriberKeys returns a browser-style p256dh/auth pair.
func subscriberKeys(t *testing.T) (string, string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(auth)
}

// TestReservationLifecycle drives the booking scenario over HTTP against a
// real sqlite database, with a staff device receiving push messages.
func TestReservationLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// --- Test Setup ---
	cfg := config.Default()
	cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.Database.LogLevel = "silent"
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000

	gormDB, err := db.Init(&cfg.Database)
	require.NoError(t, err)
	defer db.Close(gormDB)

	grid, err := cfg.Grid()
	require.NoError(t, err)

	// Fake push service standing in for the browser vendor.
	var pushes atomic.Int32
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
		pushes.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer pushService.Close()

	vapidPrivate, vapidPublic, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		Subscriber:      "staff@example.com",
		TTL:             60,
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := notification.NewWorkerPool(1, 8, gormDB, webpushOptions)
	pool.Start(ctx)
	defer func() {
		cancel()
		pool.Wait()
	}()

	now := time.Date(2026, 3, 14, 13, 28, 0, 0, time.UTC)
	handler := api.NewHandler(store.NewGormStore(gormDB), grid,
		api.WithDispatcher(pool),
		api.WithWebPush(webpushOptions),
		api.WithClock(func() time.Time { return now }),
	)
	server := httptest.NewServer(api.NewRouter(cfg, handler))
	defer server.Close()
	c := client{t: t, base: server.URL}

	// --- Staff device subscribes ---
	p256dh, auth := subscriberKeys(t)
	code, _ := c.do(http.MethodPut, "/api/subscriptions", map[string]string{
		"endpoint": pushService.URL + "/push/device-1", "p256dh": p256dh, "auth": auth, "label": "host stand",
	})
	require.Equal(t, http.StatusCreated, code)

	// --- Step 1: empty store offers the whole grid ---
	slots := c.available()
	require.Len(t, slots, 14)
	assert.Equal(t, "13:00", slots[0])
	assert.Equal(t, "19:30", slots[13])

	// --- Step 2: book 13:00 ---
	code, body := c.do(http.MethodPost, "/reservations", map[string]any{
		"name": "Ada", "phone_number": "555-0001", "time_slot": "13:00", "party_size": 4,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Reservation created successfully", body["message"])
	slots = c.available()
	assert.Len(t, slots, 13)
	assert.NotContains(t, slots, "13:00")

	// --- Step 3: another contact cannot take 13:00 ---
	code, body = c.do(http.MethodPost, "/reservations", map[string]any{
		"name": "Bob", "phone_number": "555-0002", "time_slot": "13:00", "party_size": 2,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Time slot is already booked", body["error"])

	// --- Step 4: the first contact moves to 13:30, freeing 13:00 ---
	code, body = c.do(http.MethodPost, "/reservations", map[string]any{
		"name": "Ada", "phone_number": "555-0001", "time_slot": "13:30", "party_size": 4,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Reservation updated successfully", body["message"])
	slots = c.available()
	assert.Contains(t, slots, "13:00")
	assert.NotContains(t, slots, "13:30")

	code, body = c.do(http.MethodGet, "/booked-time-slots", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"13:30"}, body["booked_time_slots"])

	// --- Step 5: check-in two minutes before 13:30 ---
	code, body = c.do(http.MethodGet, "/reservations/check-in?phone_number=555-0001", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Take a seat", body["message"])

	code, body = c.do(http.MethodGet, "/reservations/check-in?phone_number=555-0002", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "No reservation found", body["message"])

	// --- Verification: one row, two staff pushes ---
	var reservations []model.Reservation
	require.NoError(t, gormDB.Find(&reservations).Error)
	require.Len(t, reservations, 1)
	assert.Equal(t, "13:30", reservations[0].TimeSlot)

	assert.Eventually(t, func() bool { return pushes.Load() == 2 }, 5*time.Second, 20*time.Millisecond)
}
