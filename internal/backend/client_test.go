package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/recycle-kiosk/internal/config"
	apperrors "github.com/wfunc/recycle-kiosk/internal/errors"
)

func newTestClient(serverURL string) *Client {
	return NewClient(
		config.BackendConfig{
			BaseURL:    serverURL,
			Timeout:    2 * time.Second,
			HealthPath: "/health",
		},
		config.MachineConfig{ID: "KIOSK-001", Secret: "test-secret"},
	)
}

func TestVerifyCard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rfid/verify", r.URL.Path)
		assert.Equal(t, "KIOSK-001", r.Header.Get("X-Machine-ID"))
		assert.Equal(t, "test-secret", r.Header.Get("X-Machine-Secret"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "04A1B2C3", body["rfidTag"])
		assert.Equal(t, "KIOSK-001", body["machineId"])

		json.NewEncoder(w).Encode(map[string]any{
			"valid": true,
			"user": map[string]any{
				"userId":   7,
				"userName": "测试用户",
				"points":   120,
				"status":   "active",
			},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).VerifyCard(context.Background(), "04A1B2C3")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "7", result.User.UserID.String())
	assert.Equal(t, int64(120), result.User.Points)
}

func TestVerifyCardInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"valid":   false,
			"message": "card not registered",
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).VerifyCard(context.Background(), "DEADBEEF")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "card not registered", result.Message)
}

func TestSubmitTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/submit", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(3), body["paperCount"])

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"transaction": map[string]any{
				"id":            "tx-42",
				"pointsAwarded": 30,
				"totalPoints":   150,
			},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).SubmitTransaction(context.Background(), "04A1B2C3", 3, time.Now())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "tx-42", result.Transaction.ID)
	assert.Equal(t, int64(30), result.Transaction.PointsAwarded)
	assert.Equal(t, int64(150), result.Transaction.TotalPoints)
}

func TestServerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).VerifyCard(context.Background(), "04A1B2C3")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBackendResponse, apperrors.GetCode(err))
}

func TestNetworkError(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1")

	_, err := client.VerifyCard(context.Background(), "04A1B2C3")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBackendRequest, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	require.NoError(t, client.Health(context.Background(), time.Second))

	server.Close()
	err := client.Health(context.Background(), 200*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNetworkOffline, apperrors.GetCode(err))
}

func TestPendingRedemptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/redemption/pending", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"redemptions": []map[string]any{
				{"redemptionId": "rd-1", "rfidTag": "04A1B2C3", "rewardName": "5 Sheet Pack"},
				{"redemptionId": "rd-2", "rfidTag": "05FFEE01", "rewardName": "1 Sheet"},
			},
		})
	}))
	defer server.Close()

	items, err := newTestClient(server.URL).PendingRedemptions(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "rd-1", items[0].RedemptionID)
	assert.Equal(t, "5 Sheet Pack", items[0].RewardName)
}

func TestMarkRedemptionDispensedRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "already dispensed",
		})
	}))
	defer server.Close()

	err := newTestClient(server.URL).MarkRedemptionDispensed(context.Background(), "rd-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrBackendRejected, apperrors.GetCode(err))
}

func TestSendHeartbeat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "KIOSK-001", body["machineId"])
		assert.Equal(t, "online", body["status"])
		assert.Equal(t, float64(50), body["bondPaperStock"])
		assert.NotEmpty(t, body["timestamp"])
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer server.Close()

	err := newTestClient(server.URL).SendHeartbeat(context.Background(), &Heartbeat{
		Status:        "online",
		PaperStock:    50,
		PaperCapacity: 100,
		SensorHealth:  map[string]string{"ir": "ok"},
	})
	require.NoError(t, err)
}
