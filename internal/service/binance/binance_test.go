package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PairPulse/internal/domain/errs"
	"PairPulse/internal/domain/models"
	xhttp "PairPulse/pkg/http"
	"PairPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTrade(t *testing.T) {
	raw := `{"e":"trade","E":1700000000100,"s":"BTCUSDT","t":1,"p":"37000.50","q":"0.015","T":1700000000000,"m":true}`
	tick, ok, err := decodeTrade([]byte(raw))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, 37000.5, tick.Price)
	assert.Equal(t, 0.015, tick.Size)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), tick.Timestamp)

	combined := `{"stream":"ethusdt@trade","data":{"e":"trade","s":"ETHUSDT","p":"2000","q":"1","T":1700000000000}}`
	tick, ok, err = decodeTrade([]byte(combined))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", tick.Symbol)

	_, ok, err = decodeTrade([]byte(`{"result":null,"id":1}`))
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, err = decodeTrade([]byte(`{"e":"trade","s":"X","p":"abc","q":"1","T":1}`))
	assert.Error(t, err)
}

func TestStreamSubscribesAndReadsTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var req subscribeRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		subscribed <- req
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		for i := 0; i < 3; i++ {
			msg := fmt.Sprintf(`{"e":"trade","s":"BTCUSDT","p":"%d","q":"1","T":%d}`, 100+i, 1700000000000+int64(i))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := NewStream(StreamConfig{
		WSURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols: []string{"BTCUSDT", "ETHUSDT"},
	}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	assert.True(t, s.IsConnected())

	req := <-subscribed
	assert.Equal(t, "SUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@trade", "ethusdt@trade"}, req.Params)

	ticks, _ := s.Read(ctx)
	var prices []float64
	for i := 0; i < 3; i++ {
		select {
		case tk := <-ticks:
			prices = append(prices, tk.Price)
		case <-ctx.Done():
			t.Fatal("timed out")
		}
	}
	assert.Equal(t, []float64{100, 101, 102}, prices)

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
}

func TestSubscribeWithoutConnection(t *testing.T) {
	s := NewStream(StreamConfig{WSURL: "ws://127.0.0.1:1"}, logger.Nop())
	assert.Error(t, s.Subscribe(context.Background()))
	_, errc := s.Read(context.Background())
	assert.Error(t, <-errc)
}

func TestKlineSourceDropsOpenKline(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 30, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		var rows []string
		for m := 8; m <= 10; m++ {
			open := now.Truncate(time.Minute).Add(time.Duration(m-10) * time.Minute)
			rows = append(rows, fmt.Sprintf(`[%d,"1","3","0.5","2","10",%d,"25","5","1","1","0"]`,
				open.UnixMilli(), open.Add(time.Minute).UnixMilli()-1))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}))
	defer srv.Close()

	src := NewKlineSource(xhttp.NewClient(xhttp.WithTimeout(2*time.Second)), srv.URL+"/api/v3/")
	src.now = func() time.Time { return now }

	bars, err := src.LoadBars(context.Background(), "btcusdt", models.TF1m, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2.0, bars[0].Close)
	assert.Equal(t, 2.5, bars[0].VWAP)
	assert.Equal(t, "BTCUSDT", bars[0].Symbol)
	assert.True(t, bars[1].OpenTime.Before(now.Truncate(time.Minute)))
}

func TestKlineSourceUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewKlineSource(xhttp.NewClient(), srv.URL)
	_, err := src.LoadBars(context.Background(), "BTCUSDT", models.TF1m, 10)
	assert.ErrorIs(t, err, errs.ErrUpstreamUnavailable)

	var se *xhttp.StatusError
	assert.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
}
