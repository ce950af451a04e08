package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-remotestate/restro-qr/middlewares"
	"github.com/ray-remotestate/restro-qr/models"
	"github.com/ray-remotestate/restro-qr/realtime"
)

func TestLiveOrders(t *testing.T) {
	restaurantID := uuid.New()
	claims := adminClaims()

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middlewares.WithClaims(r.Context(), claims)))
		})
	})
	router.HandleFunc("/api/restaurants/{id}/live", LiveOrders).Methods(http.MethodGet)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/restaurants/" + restaurantID.String() + "/live"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool {
		return realtime.Default.Subscribers(restaurantID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	orderID := uuid.New()
	realtime.Default.Deliver(realtime.Event{
		Type:         realtime.EventOrderCreated,
		RestaurantID: restaurantID,
		OrderID:      orderID,
		OrderNumber:  "20261017-001",
		Status:       models.OrderStatusPending,
	})
	// events for other restaurants never reach this feed
	realtime.Default.Deliver(realtime.Event{Type: realtime.EventOrderCreated, RestaurantID: uuid.New()})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)

	var event realtime.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, realtime.EventOrderCreated, event.Type)
	assert.Equal(t, orderID, event.OrderID)
	assert.Equal(t, "20261017-001", event.OrderNumber)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return realtime.Default.Subscribers(restaurantID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLiveOrdersRejectsBadRestaurantID(t *testing.T) {
	rec := serve(t, http.MethodGet, "/api/restaurants/{id}/live", "/api/restaurants/not-a-uuid/live",
		LiveOrders, nil, adminClaims())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
