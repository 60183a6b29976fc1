package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"

	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/velvetfox/velvetfox/internal/bus"
	"github.com/velvetfox/velvetfox/internal/config"
)

// SlackChannel runs over Socket Mode. Choice menus render as a numbered
// list; replying with the bare number selects that option. The last menu
// shown per chat is kept so the number can be mapped back to choice data.
type SlackChannel struct {
	Base
	cfg       *config.SlackConfig
	webClient *slackgo.Client
	smClient  *socketmode.Client
	botUserID string

	mu    sync.Mutex
	menus map[string][]string // chat id → choice data in display order
}

func NewSlackChannel(cfg *config.SlackConfig, b bus.Bus) *SlackChannel {
	return &SlackChannel{
		Base:  NewBase(bus.ChannelSlack, b, cfg.AllowFrom),
		cfg:   cfg,
		menus: make(map[string][]string),
	}
}

func (s *SlackChannel) Name() string { return string(bus.ChannelSlack) }

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		slog.Warn("slack: bot/app token not configured")
		<-ctx.Done()
		return ctx.Err()
	}

	s.webClient = slackgo.New(s.cfg.BotToken,
		slackgo.OptionAppLevelToken(s.cfg.AppToken))

	if resp, err := s.webClient.AuthTestContext(ctx); err == nil {
		s.botUserID = resp.UserID
		slog.Info("slack: connected", "bot_user_id", s.botUserID)
	}

	s.smClient = socketmode.New(s.webClient)
	go s.smClient.RunContext(ctx) //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-s.smClient.Events:
			if !ok {
				return nil
			}
			s.handleEvent(evt)
		}
	}
}

func (s *SlackChannel) handleEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	s.smClient.Ack(*evt.Request)
	cb, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if cb.InnerEvent.Type != "message" && cb.InnerEvent.Type != "app_mention" {
		return
	}
	s.handleInnerEvent(cb.InnerEvent)
}

func (s *SlackChannel) handleInnerEvent(ev slackevents.EventsAPIInnerEvent) {
	data, ok := ev.Data.(map[string]interface{})
	if !ok {
		return
	}
	userID, _ := data["user"].(string)
	channel, _ := data["channel"].(string)
	text, _ := data["text"].(string)
	subtype, _ := data["subtype"].(string)

	if subtype != "" || userID == "" || channel == "" {
		return
	}
	if userID == s.botUserID {
		return
	}
	// Avoid double-processing mention + message events.
	if ev.Type == "message" && s.botUserID != "" && strings.Contains(text, "<@"+s.botUserID+">") {
		return
	}

	text = strings.TrimSpace(s.stripMention(text))
	if text == "" {
		return
	}

	// A bare number answers the last choice menu shown in this chat.
	if n, err := strconv.Atoi(text); err == nil {
		s.mu.Lock()
		menu := s.menus[channel]
		s.mu.Unlock()
		if n >= 1 && n <= len(menu) {
			s.HandleSelection(userID, channel, menu[n-1], nil)
			return
		}
	}

	s.HandleText(userID, channel, text, nil)
}

func (s *SlackChannel) stripMention(text string) string {
	if s.botUserID == "" {
		return text
	}
	re := regexp.MustCompile(`<@` + regexp.QuoteMeta(s.botUserID) + `>\s*`)
	return re.ReplaceAllString(text, "")
}

func (s *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if s.webClient == nil {
		return nil
	}

	text := msg.Content()
	choices := msg.Choices()
	if len(choices) > 0 {
		var sb strings.Builder
		sb.WriteString(text)
		sb.WriteString("\n")
		var order []string
		n := 1
		for _, row := range choices {
			for _, choice := range row {
				fmt.Fprintf(&sb, "\n%d. %s", n, choice.Label)
				order = append(order, choice.Data)
				n++
			}
		}
		sb.WriteString("\n\n_Reply with a number to choose._")
		text = sb.String()

		s.mu.Lock()
		s.menus[msg.ChatId()] = order
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		delete(s.menus, msg.ChatId())
		s.mu.Unlock()
	}

	_, _, err := s.webClient.PostMessageContext(ctx, msg.ChatId(),
		slackgo.MsgOptionText(text, false))
	return err
}
