package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"memetic/internal/events"
)

// subscribeRequest asks the indexer feed to replay from a cursor.
type subscribeRequest struct {
	Type      string `json:"type"`
	ChainID   uint64 `json:"chain_id"`
	FromBlock uint64 `json:"from_block"`
	FromLog   uint   `json:"from_log_index"`
}

type StreamOptions struct {
	URL               string
	ChainID           uint64
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// Stream consumes the indexer's websocket feed and hands every message to
// the dispatcher. After a reconnect it resubscribes from the stored cursor,
// so redelivered events are absorbed by the idempotent handlers.
type Stream struct {
	opts       StreamOptions
	dispatcher *Dispatcher
	seenFirst  bool
}

func NewStream(opts StreamOptions, dispatcher *Dispatcher) *Stream {
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Stream{opts: opts, dispatcher: dispatcher}
}

func (s *Stream) Run(ctx context.Context) error {
	if s == nil || s.dispatcher == nil {
		return fmt.Errorf("stream is not configured")
	}
	if strings.TrimSpace(s.opts.URL) == "" {
		return fmt.Errorf("stream url is required")
	}
	log := s.opts.Logger
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, s.opts.URL, nil)
		if err != nil {
			log.Warn("event stream connect failed", zap.Error(err))
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		conn.SetReadLimit(4 << 20)

		if err := s.subscribe(ctx, conn); err != nil {
			log.Warn("event stream subscribe failed", zap.Error(err))
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		log.Info("event stream connected", zap.Uint64("chain_id", s.opts.ChainID))
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *Stream) subscribe(ctx context.Context, conn *websocket.Conn) error {
	block, logIndex, err := s.dispatcher.Cursor(ctx, s.opts.ChainID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(subscribeRequest{
		Type:      "subscribe",
		ChainID:   s.opts.ChainID,
		FromBlock: block,
		FromLog:   logIndex,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (s *Stream) consume(ctx context.Context, conn *websocket.Conn) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.opts.PingTimeout)
				err := conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		_, raw, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("event stream read failed", zap.Error(err))
			}
			return err
		}
		if isPing(raw) {
			_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`))
			continue
		}
		envs, err := decodeMessage(raw)
		if err != nil {
			s.opts.Logger.Warn("event stream message dropped", zap.Error(err))
			continue
		}
		if !s.seenFirst && len(envs) > 0 {
			s.seenFirst = true
			s.opts.Logger.Info("event stream first message", zap.String("kind", envs[0].Kind))
		}
		for _, r := range s.dispatcher.DispatchBatch(ctx, envs) {
			if r.Status == StatusFailed {
				// Reconnecting resubscribes from the last applied event.
				return fmt.Errorf("event %s at block %d failed: %s", r.Kind, r.BlockNumber, r.Error)
			}
		}
	}
}

// decodeMessage accepts a single envelope or an array of them.
func decodeMessage(raw []byte) ([]events.Envelope, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var envs []events.Envelope
		if err := json.Unmarshal(raw, &envs); err != nil {
			return nil, err
		}
		return envs, nil
	}
	var env events.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("message without kind")
	}
	return []events.Envelope{env}, nil
}

func isPing(raw []byte) bool {
	if strings.TrimSpace(string(raw)) == "ping" {
		return true
	}
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil {
		return strings.EqualFold(probe.Type, "ping")
	}
	return false
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
