package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"memetic/internal/events"
	"memetic/internal/models"
)

func TestDecodeMessage(t *testing.T) {
	envs, err := decodeMessage([]byte(`[{"kind":"SignalCreated","block_number":1},{"kind":"FidBanned","block_number":2}]`))
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, uint64(2), envs[1].BlockNumber)

	envs, err = decodeMessage([]byte(` {"kind":"WalletBanned","chain_id":8453,"args":{"wallet":"0x0"}}`))
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, uint64(8453), envs[0].ChainID)
	assert.JSONEq(t, `{"wallet":"0x0"}`, string(envs[0].Args))

	_, err = decodeMessage([]byte(`{"type":"welcome"}`))
	assert.Error(t, err)
	_, err = decodeMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestIsPing(t *testing.T) {
	assert.True(t, isPing([]byte("ping")))
	assert.True(t, isPing([]byte(`{"type":"PING"}`)))
	assert.False(t, isPing([]byte(`{"type":"pong"}`)))
	assert.False(t, isPing([]byte(`[]`)))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(20*time.Second, 30*time.Second))
}

func TestStreamSubscribesFromCursorAndDispatches(t *testing.T) {
	d, store, _ := newDispatcher(t)
	require.NoError(t, store.SaveSyncState(context.Background(), &models.SyncState{
		Scope:        SyncScope(8453),
		LastBlock:    9,
		LastLogIndex: 4,
	}))

	subscribed := make(chan subscribeRequest, 1)
	ponged := make(chan string, 1)
	batch, err := json.Marshal([]events.Envelope{
		env(8453, 10, 0, events.KindSignalCreated, createdArgs(1)),
		env(8453, 10, 1, events.KindWalletAuthorized, `{"fid":42,"wallet":"`+wallet+`"}`),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		_, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		var req subscribeRequest
		_ = json.Unmarshal(msg, &req)
		subscribed <- req

		if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
			return
		}
		_, msg, err = c.Read(ctx)
		if err != nil {
			return
		}
		ponged <- string(msg)

		if err := c.Write(ctx, websocket.MessageText, batch); err != nil {
			return
		}
		// Hold the connection until the client goes away.
		_, _, _ = c.Read(ctx)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := NewStream(StreamOptions{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http"),
		ChainID:           8453,
		HeartbeatInterval: time.Hour,
		BackoffMin:        10 * time.Millisecond,
		BackoffMax:        50 * time.Millisecond,
	}, d)
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	select {
	case req := <-subscribed:
		assert.Equal(t, "subscribe", req.Type)
		assert.Equal(t, uint64(9), req.FromBlock)
		assert.Equal(t, uint(4), req.FromLog)
	case <-time.After(5 * time.Second):
		t.Fatalf("no subscribe request")
	}
	select {
	case msg := <-ponged:
		assert.JSONEq(t, `{"type":"pong"}`, msg)
	case <-time.After(5 * time.Second):
		t.Fatalf("no pong")
	}

	require.Eventually(t, func() bool {
		block, logIndex, err := d.Cursor(context.Background(), 8453)
		return err == nil && block == 10 && logIndex == 1
	}, 5*time.Second, 10*time.Millisecond)

	sig, err := store.GetSignal(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, sig)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("stream did not stop")
	}
}

func TestStreamRequiresURL(t *testing.T) {
	d, _, _ := newDispatcher(t)
	err := NewStream(StreamOptions{}, d).Run(context.Background())
	assert.Error(t, err)
}
