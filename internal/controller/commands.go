package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/velvetfox/velvetfox/internal/bus"
	"github.com/velvetfox/velvetfox/internal/schema"
)

const helpText = `I'm a role-play companion. Set the stage, then just talk to me.

/setup — configure your name, profile, my persona, the scene, and memory
/status — show the current setup
/regenerate — redo my last reply
/clear — forget the chat history (setup and memory stay)
/delete — delete history, memory, or everything
/cancel — close any open menu or abandon a pending request

Tips:
- In the persona menu, try "Surprise Me!" to have me invent a character.
- In the scenery menu, "Surprise Me!" generates a fresh setting by genre.`

const aboutText = `I'm a locally hosted role-play agent. Everything — our chats, my memory, your setup — stays on the machine I run on. No cloud, no telemetry.`

func (c *Controller) handleCommand(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	command := strings.ToLower(strings.Fields(msg.Content())[0])
	// Telegram suffixes commands with the bot name in groups.
	if i := strings.Index(command, "@"); i > 0 {
		command = command[:i]
	}
	slog.Info("command", "session", msg.SessionKey(), "command", command)

	switch command {
	case "/start":
		return c.cmdStart(ctx, msg, rec)
	case "/setup":
		return c.cmdSetup(ctx, msg, rec)
	case "/help":
		return c.notice(msg, helpText)
	case "/about":
		return c.notice(msg, aboutText)
	case "/status":
		return c.cmdStatus(ctx, msg, rec)
	case "/regenerate":
		return c.cmdRegenerate(ctx, msg, rec)
	case "/clear":
		return c.cmdClear(ctx, msg, rec)
	case "/delete":
		return c.cmdDelete(ctx, msg, rec)
	case "/cancel":
		return c.cmdCancel(ctx, msg, rec)
	}
	return c.notice(msg, "I don't know that command. Try /help.")
}

func (c *Controller) cmdStart(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	if err := c.saveSession(ctx, rec); err != nil {
		slog.Error("save session failed", "session", msg.SessionKey(), "err", err)
		return c.notice(msg, noticeStoreError)
	}
	return c.notice(msg, "Hello! I'm your role-play companion. Run /setup to pick who I am and where our story happens, or just start talking. /help shows everything I can do.")
}

func (c *Controller) cmdSetup(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	reply := c.wizard.Start(rec)
	if err := c.saveSession(ctx, rec); err != nil {
		slog.Error("save session failed", "session", msg.SessionKey(), "err", err)
		return c.notice(msg, noticeStoreError)
	}
	return c.reply(msg, reply)
}

func (c *Controller) cmdStatus(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
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
		name = "not set"
	}
	profile := rec.UserProfile
	if profile == "" {
		profile = "not set"
	}
	memory := "enabled"
	if !rec.MemoryEnabled {
		memory = "disabled"
	}

	count, err := c.store.TurnCount(ctx, rec.ChatID)
	if err != nil {
		slog.Error("turn count failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}

	status := fmt.Sprintf(
		"Current setup:\n👤 Name: %s\n📝 Profile: %s\n🎭 Persona: %s\n🏞 Scene: %s\n🧠 Memory: %s\n💬 Turns in history: %d",
		name, profile, persona.Name, scene.Name, memory, count,
	)
	if rec.MemoryEnabled {
		if summary, _, ok, err := c.store.GetSummary(ctx, rec.ChatID); err == nil && ok && summary != "" {
			status += fmt.Sprintf("\n\nWhat I remember:\n%s", summary)
		}
	}
	return c.notice(msg, status)
}

// cmdRegenerate discards the last assistant turn and replays the reply from
// the same prior context. The fresh submission's fencing token supersedes
// anything still in flight for this chat.
func (c *Controller) cmdRegenerate(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	deleted, err := c.store.DeleteLastAssistantTurn(ctx, rec.ChatID)
	if err != nil {
		slog.Error("delete last assistant turn failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}
	if !deleted {
		// A failed generation can leave the newest user turn unanswered.
		// That turn is still a legitimate regenerate target: there is
		// nothing to delete, but there is something to reply to.
		recent, err := c.store.RecentTurns(ctx, rec.ChatID, 1)
		if err != nil {
			slog.Error("recent turns failed", "chat", rec.ChatID, "err", err)
			return c.notice(msg, noticeStoreError)
		}
		if len(recent) == 0 || recent[0].Role != "user" {
			return c.notice(msg, "There's no reply of mine to redo right now.")
		}
	}

	prompt, err := c.buildPrompt(ctx, rec, "")
	if err != nil {
		slog.Error("build prompt failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}
	// A redone reply was already counted toward consolidation; answering a
	// previously failed turn was not.
	return c.generateReply(ctx, msg, rec, prompt, !deleted)
}

func (c *Controller) cmdClear(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	if err := c.store.ClearTurns(ctx, rec.ChatID); err != nil {
		slog.Error("clear turns failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}
	rec.TurnsSince = 0
	if err := c.saveSession(ctx, rec); err != nil {
		slog.Error("save session failed", "chat", rec.ChatID, "err", err)
		return c.notice(msg, noticeStoreError)
	}
	return c.notice(msg, "Chat history cleared. Your setup and my long-term memory are untouched.")
}

func (c *Controller) cmdDelete(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	reply := c.wizard.StartDelete(rec)
	if err := c.saveSession(ctx, rec); err != nil {
		slog.Error("save session failed", "session", msg.SessionKey(), "err", err)
		return c.notice(msg, noticeStoreError)
	}
	return c.reply(msg, reply)
}

// cmdCancel aborts both an in-flight generation (by bumping the fence) and
// any active wizard flow.
func (c *Controller) cmdCancel(ctx context.Context, msg bus.InboundMessage, rec *schema.SessionRecord) []bus.OutboundMessage {
	c.queue.Bump(rec.ChatID)
	if !rec.WizardActive() {
		return c.notice(msg, "Nothing to cancel — we're mid-story. Just keep talking.")
	}
	reply := c.wizard.Cancel(rec)
	if err := c.saveSession(ctx, rec); err != nil {
		slog.Error("save session failed", "session", msg.SessionKey(), "err", err)
		return c.notice(msg, noticeStoreError)
	}
	return c.reply(msg, reply)
}
