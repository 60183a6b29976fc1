package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/velvetfox/velvetfox/internal/bus"
	"github.com/velvetfox/velvetfox/internal/config"
)

// BridgeChannel connects to an external UI over a WebSocket JSON bridge.
//
// Wire format, one JSON object per frame:
//
//	→ {"type":"auth","token":"…"}
//	← {"type":"message","sender":"…","chat":"…","content":"…"}
//	← {"type":"select","sender":"…","chat":"…","data":"…"}
//	→ {"type":"send","to":"…","text":"…","choices":[[{"label":"…","data":"…"}]]}
type BridgeChannel struct {
	Base
	cfg *config.BridgeConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewBridgeChannel(cfg *config.BridgeConfig, b bus.Bus) *BridgeChannel {
	return &BridgeChannel{
		Base: NewBase(bus.ChannelBridge, b, nil),
		cfg:  cfg,
	}
}

func (w *BridgeChannel) Name() string { return string(bus.ChannelBridge) }

func (w *BridgeChannel) Start(ctx context.Context) error {
	url := w.cfg.URL
	if url == "" {
		url = "ws://localhost:3917"
	}
	slog.Info("bridge: connecting", "url", url)

	for {
		if err := w.connectOnce(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("bridge: connection lost, reconnecting in 5s", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (w *BridgeChannel) connectOnce(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		conn.Close()
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}()

	slog.Info("bridge: connected")

	if w.cfg.Token != "" {
		auth, _ := json.Marshal(map[string]string{"type": "auth", "token": w.cfg.Token})
		if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
			return err
		}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.handleFrame(raw)
	}
}

func (w *BridgeChannel) handleFrame(raw []byte) {
	var frame struct {
		Type    string `json:"type"`
		Sender  string `json:"sender"`
		Chat    string `json:"chat"`
		Content string `json:"content"`
		Data    string `json:"data"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		slog.Debug("bridge: malformed frame", "err", err)
		return
	}
	switch frame.Type {
	case "message":
		if frame.Sender == "" || frame.Chat == "" {
			return
		}
		w.HandleText(frame.Sender, frame.Chat, frame.Content, nil)
	case "select":
		if frame.Sender == "" || frame.Chat == "" {
			return
		}
		w.HandleSelection(frame.Sender, frame.Chat, frame.Data, nil)
	case "error":
		slog.Error("bridge: remote error", "error", frame.Error)
	}
}

func (w *BridgeChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("bridge: not connected")
	}

	frame := map[string]any{
		"type": "send",
		"to":   msg.ChatId(),
		"text": msg.Content(),
	}
	if choices := msg.Choices(); len(choices) > 0 {
		var rows [][]map[string]string
		for _, row := range choices {
			var out []map[string]string
			for _, choice := range row {
				out = append(out, map[string]string{"label": choice.Label, "data": choice.Data})
			}
			rows = append(rows, out)
		}
		frame["choices"] = rows
	}
	payload, _ := json.Marshal(frame)
	return conn.WriteMessage(websocket.TextMessage, payload)
}
