// Package controller routes every inbound user action: commands, setup
// wizard input, and role-play turns. It is the only writer of session
// records and chat history.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/velvetfox/velvetfox/internal/bus"
	"github.com/velvetfox/velvetfox/internal/config"
	"github.com/velvetfox/velvetfox/internal/content"
	"github.com/velvetfox/velvetfox/internal/memory"
	"github.com/velvetfox/velvetfox/internal/queue"
	"github.com/velvetfox/velvetfox/internal/schema"
	"github.com/velvetfox/velvetfox/internal/store"
	"github.com/velvetfox/velvetfox/internal/wizard"
)

const (
	noticeSaturated  = "I'm handling a lot of requests right now — please try again in a moment."
	noticeGenFailed  = "Sorry, something went wrong while I was thinking. Could you say that again?"
	noticeStoreError = "I couldn't save that just now — please try again."
)

// Controller dispatches inbound messages. One instance serves all chats;
// a per-chat mutex serializes handling within a chat while different chats
// proceed concurrently.
type Controller struct {
	store        store.HistoryStore
	queue        *queue.Queue
	wizard       *wizard.Machine
	consolidator *memory.Consolidator
	catalog      *content.Catalog
	bus          bus.Bus
	provider     config.ProviderConfig
	window       int // raw turns included in role-play prompts

	mu    sync.Mutex
	locks map[string]*chatLock
}

// chatLock serializes handling within one chat. The reference count lets
// the map entry be dropped as soon as nobody holds or waits on it, so the
// map does not grow with every chat ever seen.
type chatLock struct {
	mu   sync.Mutex
	refs int
}

func New(st store.HistoryStore, q *queue.Queue, wiz *wizard.Machine, cons *memory.Consolidator,
	cat *content.Catalog, b bus.Bus, provider config.ProviderConfig, historyWindow int) *Controller {
	if historyWindow <= 0 {
		historyWindow = 20
	}
	return &Controller{
		store:        st,
		queue:        q,
		wizard:       wiz,
		consolidator: cons,
		catalog:      cat,
		bus:          b,
		provider:     provider,
		window:       historyWindow,
		locks:        make(map[string]*chatLock),
	}
}

// Run consumes the inbound bus until ctx is cancelled. Each message is
// handled on its own goroutine; the per-chat lock keeps a chat's messages
// strictly ordered.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("controller started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("controller stopped")
			return ctx.Err()
		case msg := <-c.bus.InboundChan():
			go func(msg bus.InboundMessage) {
				for _, out := range c.HandleInbound(ctx, msg) {
					c.bus.PublishOutbound(out)
				}
			}(msg)
		}
	}
}

// HandleInbound processes one user action and returns the replies to send.
func (c *Controller) HandleInbound(ctx context.Context, msg bus.InboundMessage) []bus.OutboundMessage {
	lock := c.lockChat(msg.SessionKey())
	defer c.unlockChat(msg.SessionKey(), lock)

	slog.Debug("handling message", "session", msg.SessionKey(), "selection", msg.IsSelection(), "preview", msg.Preview())

	rec, err := c.loadSession(ctx, msg)
	if err != nil {
		slog.Error("load session failed", "session", msg.SessionKey(), "err", err)
		return c.notice(msg, noticeStoreError)
	}

	if !msg.IsSelection() && strings.HasPrefix(msg.Content(), "/") {
		return c.handleCommand(ctx, msg, rec)
	}
	if msg.IsSelection() || rec.WizardActive() {
		return c.handleWizard(ctx, msg, rec)
	}
	return c.handleRoleplay(ctx, msg, rec)
}

func (c *Controller) lockChat(key string) *chatLock {
	c.mu.Lock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &chatLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (c *Controller) unlockChat(key string, lock *chatLock) {
	lock.mu.Unlock()

	c.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(c.locks, key)
	}
	c.mu.Unlock()
}

func (c *Controller) loadSession(ctx context.Context, msg bus.InboundMessage) (*schema.SessionRecord, error) {
	rec, err := c.store.GetSession(ctx, msg.SessionKey())
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = schema.NewSessionRecord(msg.Channel(), msg.SessionKey())
	}
	return rec, nil
}

func (c *Controller) saveSession(ctx context.Context, rec *schema.SessionRecord) error {
	if err := c.store.SaveSession(ctx, rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (c *Controller) notice(msg bus.InboundMessage, text string) []bus.OutboundMessage {
	return []bus.OutboundMessage{bus.NewOutboundMessage(msg.Channel(), msg.ChatId(), text)}
}

func (c *Controller) reply(msg bus.InboundMessage, r wizard.Reply) []bus.OutboundMessage {
	out := bus.NewOutboundMessage(msg.Channel(), msg.ChatId(), r.Text)
	if len(r.Choices) > 0 {
		out.SetChoices(r.Choices)
	}
	return []bus.OutboundMessage{out}
}

// chatOptions builds the provider options for a role-play request. The
// user's speaker tag doubles as a stop sequence so the model does not write
// the user's lines.
func (c *Controller) chatOptions(rec *schema.SessionRecord) schema.ChatOptions {
	opts := schema.NewChatOptions(c.provider.Model, c.provider.MaxTokens, c.provider.Temperature)
	if rec.UserName != "" {
		opts.Stop = []string{rec.UserName + ":"}
	}
	return opts
}

// systemPrompt composes the role-play framing from the session setup,
// falling back to the default persona and scene for chats that never ran
// setup.
func (c *Controller) systemPrompt(rec *schema.SessionRecord) string {
	persona := rec.Persona
	if persona.IsZero() {
		persona = c.catalog.DefaultPersona()
	}
	scene := rec.Scene
	if scene.IsZero() {
		scene = c.catalog.DefaultScene()
	}
	name := rec.UserName
	if name == "" {
		name = "user"
	}
	profile := rec.UserProfile
	if profile == "" {
		profile = "not specified"
	}
	return fmt.Sprintf(
		"(This is a role-play. %s The user you are talking to is named '%s'. Their description is: '%s'. The scene is: '%s'. You will now begin the role-play.)",
		persona.Prompt, name, profile, scene.Text,
	)
}

// buildPrompt assembles the full message list for one role-play reply:
// framing, long-term memory, the recent window, and the new user text.
func (c *Controller) buildPrompt(ctx context.Context, rec *schema.SessionRecord, userText string) (schema.Messages, error) {
	msgs := schema.NewMessages()
	msgs.AddSystem(c.systemPrompt(rec))

	if rec.MemoryEnabled {
		summary, _, ok, err := c.store.GetSummary(ctx, rec.ChatID)
		if err != nil {
			return schema.Messages{}, fmt.Errorf("get summary: %w", err)
		}
		if ok && summary != "" {
			msgs.AddSystem("(Memory: " + summary + ")")
		}
	}

	recent, err := c.store.RecentTurns(ctx, rec.ChatID, c.window)
	if err != nil {
		return schema.Messages{}, fmt.Errorf("recent turns: %w", err)
	}
	for _, turn := range recent {
		if turn.Role == "assistant" {
			msgs.AddAssistant(turn.Content)
		} else {
			msgs.AddUser(turn.Content)
		}
	}
	if userText != "" {
		msgs.AddUser(userText)
	}
	return msgs, nil
}

// handleRoleplay is the ordinary conversational path.
func (c *Controller) handleRoleplay(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	text := strings.TrimSpace(msg.Content())
	if text == "" {
		return nil
	}

	if err := c.store.AppendTurn(ctx, rec.ChatID, "user", text); err != nil {
		slog.Error("append user turn failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}

	prompt, err := c.buildPrompt(ctx, rec, "")
	if err != nil {
		slog.Error("build prompt failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}

	return c.generateReply(ctx, msg, rec, prompt, true)
}

// generateReply submits a chat completion and persists the outcome. Shared
// by the normal turn path and /regenerate; countExchange is false when the
// exchange was already counted toward consolidation, as when a reply is
// being redone.
func (c *Controller) generateReply(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord, prompt schema.Messages, countExchange bool) []bus.OutboundMessage {
	pending, err := c.queue.Submit(&queue.Request{
		Kind:     queue.KindChatReply,
		ChatID:   rec.ChatID,
		Messages: prompt,
		Opts:     c.chatOptions(rec),
	})
	if errors.Is(err, queue.ErrQueueSaturated) {
		return c.notice(msg, noticeSaturated)
	}
	if err != nil {
		slog.Error("submit failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeGenFailed)
	}

	reply, err := pending.Wait(ctx)
	switch {
	case errors.Is(err, queue.ErrStaleResult):
		return nil
	case err != nil:
		slog.Warn("generation failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeGenFailed)
	}

	if err := c.store.AppendTurn(ctx, rec.ChatID, "assistant", reply); err != nil {
		slog.Error("append assistant turn failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}

	out := c.notice(msg, reply)
	if countExchange {
		out = append(out, c.afterAcceptedTurn(ctx, msg, rec)...)
	}
	return out
}

// afterAcceptedTurn advances the consolidation counter and, at the
// threshold, kicks off a consolidation pass.
func (c *Controller) afterAcceptedTurn(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	rec.TurnsSince += 2 // the user turn and the assistant turn
	trigger := rec.MemoryEnabled && rec.TurnsSince >= c.consolidator.Threshold()
	if trigger {
		rec.TurnsSince = 0
	}
	if err := c.saveSession(ctx, rec); err != nil {
		slog.Error("save session failed", "chat", rec.ChatID, "err", err)
		return nil
	}
	if !trigger {
		return nil
	}

	applied, err := c.consolidator.Consolidate(ctx, rec.ChatID)
	if err != nil {
		// Non-fatal: the maintenance sweep retries later.
		slog.Warn("consolidation failed", "chat", rec.ChatID, "err", err)
		return nil
	}
	if !applied {
		return nil
	}
	return c.notice(msg, "(A new memory has been formed.)")
}

// handleWizard routes input into the state machine with persist-before-
// effect ordering: the transition is durable before any generation is
// submitted or history touched.
func (c *Controller) handleWizard(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	if !rec.WizardActive() {
		// A stray selection from an old menu. Ignore rather than confuse
		// the role-play.
		slog.Debug("selection without active wizard", "session", msg.SessionKey())
		return nil
	}

	reply, effect, err := c.wizard.Handle(rec, wizard.Input{Text: msg.Content(), Selection: msg.IsSelection()})
	if errors.Is(err, wizard.ErrInvalidInput) {
		return c.reply(msg, reply) // state unchanged, reply is the hint
	}
	if err != nil {
		slog.Error("wizard error", "session", msg.SessionKey(), "err", err)
		return nil
	}

	if err := c.saveSession(ctx, rec); err != nil {
		slog.Error("save session failed", "session", msg.SessionKey(), "err", err)
		return c.notice(msg, noticeStoreError)
	}

	out := c.reply(msg, reply)
	out = append(out, c.performEffect(ctx, msg, rec, effect)...)
	return out
}

func (c *Controller) performEffect(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord, effect wizard.Effect) []bus.OutboundMessage {
	switch effect.Kind {
	case wizard.EffectNone:
		return nil
	case wizard.EffectGeneratePersona, wizard.EffectGenerateScene:
		c.startGeneration(msg, effect)
		return nil
	case wizard.EffectClearHistory:
		if err := c.store.ClearTurns(ctx, rec.ChatID); err != nil {
			slog.Error("clear turns failed", "chat", rec.ChatID, "err", err)
			return c.notice(msg, noticeStoreError)
		}
		rec.TurnsSince = 0
		if err := c.saveSession(ctx, rec); err != nil {
			slog.Error("save session failed", "chat", rec.ChatID, "err", err)
		}
		return nil
	case wizard.EffectDeleteChat:
		if err := c.store.DeleteChat(ctx, rec.ChatID); err != nil {
			slog.Error("delete chat failed", "chat", rec.ChatID, "err", err)
			return c.notice(msg, noticeStoreError)
		}
		return nil
	}
	return nil
}

// startGeneration runs a persona/scene generation without holding the chat
// lock for its duration. The wizard is parked in Generating; the result is
// delivered through the outbound bus when it arrives.
func (c *Controller) startGeneration(msg bus.InboundMessage, effect wizard.Effect) {
	kind := queue.KindPersona
	if effect.Kind == wizard.EffectGenerateScene {
		kind = queue.KindScene
	}
	prompt := schema.NewMessages()
	prompt.AddUser(effect.Prompt)

	go func() {
		ctx := context.Background()
		var text string
		pending, err := c.queue.Submit(&queue.Request{
			Kind:     kind,
			ChatID:   msg.SessionKey(),
			Messages: prompt,
			Opts:     schema.NewChatOptions(c.provider.Model, c.provider.MaxTokens, c.provider.Temperature),
		})
		if err == nil {
			text, err = pending.Wait(ctx)
		}

		lock := c.lockChat(msg.SessionKey())
		defer c.unlockChat(msg.SessionKey(), lock)

		rec, loadErr := c.loadSession(ctx, msg)
		if loadErr != nil {
			slog.Error("load session after generation failed", "session", msg.SessionKey(), "err", loadErr)
			return
		}
		reply := c.wizard.CompleteGeneration(rec, effect.Kind, text, err)
		if reply.Text == "" {
			return // flow was cancelled while generating
		}
		if err := c.saveSession(ctx, rec); err != nil {
			slog.Error("save session after generation failed", "session", msg.SessionKey(), "err", err)
			return
		}
		for _, out := range c.reply(msg, reply) {
			c.bus.PublishOutbound(out)
		}
	}()
}
