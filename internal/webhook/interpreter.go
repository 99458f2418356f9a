// ABOUTME: Webhook interpreter classifying Telegram updates and running owner commands
// ABOUTME: Keeps the channel registry in sync with the bot's own membership changes

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/2389/dolarbot/internal/botapi"
	"github.com/2389/dolarbot/internal/store"
)

// ErrMalformedUpdate is returned for empty bodies and bodies that are not a JSON object.
var ErrMalformedUpdate = errors.New("malformed update")

// UpdateKind is the variant of an inbound update.
type UpdateKind string

const (
	KindMessage     UpdateKind = "message"
	KindChatMember  UpdateKind = "my_chat_member"
	KindChannelPost UpdateKind = "channel_post"
	KindUnknown     UpdateKind = "unknown"
)

// Commands understood from the owner.
const (
	CmdStart        = "/start"
	CmdPing         = "/ping"
	CmdListChannels = "/list_channels"
	CmdEditChannel  = "/edit_channel_data"
)

// Replies sent back to the owner.
const (
	ReplyNoChannels      = "No channels available"
	ReplyMissingArgs     = "Missing required arguments"
	ReplyChannelNotFound = "Channel id not found"
	ReplyChannelUpdated  = "Channel and service updated"
)

// Outcome describes what Handle did with one update.
type Outcome struct {
	Kind    UpdateKind
	Command string
	// Handled is true when a reply was sent or the registry was changed.
	Handled bool
}

// Config holds the identities the interpreter authorizes against.
type Config struct {
	OwnerID int64
	BotID   int64
}

// Interpreter executes at most one side effect per update.
type Interpreter struct {
	channels store.ChannelStore
	sender   botapi.Sender
	ownerID  int64
	botID    int64
	locks    *keyLock
	logger   *slog.Logger
}

// NewInterpreter creates an interpreter. Pass nil logger for default.
func NewInterpreter(channels store.ChannelStore, sender botapi.Sender, cfg Config, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		channels: channels,
		sender:   sender,
		ownerID:  cfg.OwnerID,
		botID:    cfg.BotID,
		locks:    newKeyLock(),
		logger:   logger.With("component", "webhook"),
	}
}

// Parse validates body and returns it as a JSON object.
func Parse(body []byte) (gjson.Result, error) {
	if len(strings.TrimSpace(string(body))) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrMalformedUpdate
	}
	update := gjson.ParseBytes(body)
	if !update.IsObject() {
		return gjson.Result{}, ErrMalformedUpdate
	}
	return update, nil
}

// Classify picks the variant by the first known key present.
func Classify(update gjson.Result) UpdateKind {
	switch {
	case update.Get(string(KindMessage)).Exists():
		return KindMessage
	case update.Get(string(KindChatMember)).Exists():
		return KindChatMember
	case update.Get(string(KindChannelPost)).Exists():
		return KindChannelPost
	default:
		return KindUnknown
	}
}

// Handle processes one raw update. Only a malformed body is an error;
// failures inside a branch are logged.
func (in *Interpreter) Handle(ctx context.Context, body []byte) (Outcome, error) {
	update, err := Parse(body)
	if err != nil {
		return Outcome{}, err
	}
	return in.HandleUpdate(ctx, update), nil
}

// HandleUpdate processes an already parsed update.
func (in *Interpreter) HandleUpdate(ctx context.Context, update gjson.Result) Outcome {
	kind := Classify(update)
	switch kind {
	case KindMessage:
		return in.handleMessage(ctx, update.Get("message"))
	case KindChatMember:
		return in.handleChatMember(ctx, update.Get("my_chat_member"))
	default:
		// channel posts and unknown updates are acknowledged only
		in.logger.Debug("update ignored", "kind", kind, "update_id", update.Get("update_id").Int())
		return Outcome{Kind: kind}
	}
}

func (in *Interpreter) handleMessage(ctx context.Context, msg gjson.Result) Outcome {
	out := Outcome{Kind: KindMessage}

	from := msg.Get("from.id")
	if !from.Exists() || from.Int() != in.ownerID {
		in.logger.Debug("ignoring message from non-owner", "from_id", from.Int())
		return out
	}

	chatID := msg.Get("chat.id").Int()
	tokens := strings.Split(msg.Get("text").String(), " ")
	out.Command = commandName(tokens[0])

	var err error
	switch out.Command {
	case CmdStart, CmdPing:
		first := msg.Get("from.first_name").String()
		err = in.reply(ctx, chatID, "MarkdownV2", "Hello *"+EscapeMarkdownV2(first)+"*")
	case CmdListChannels:
		err = in.listChannels(ctx, chatID)
	case CmdEditChannel:
		err = in.editChannel(ctx, chatID, tokens)
	default:
		return out
	}

	if err != nil {
		in.logger.Error("command failed", "command", out.Command, "error", err)
		return out
	}
	out.Handled = true
	return out
}

func (in *Interpreter) listChannels(ctx context.Context, chatID int64) error {
	channels, err := in.channels.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("listing channels: %w", err)
	}

	text := ReplyNoChannels
	if len(channels) > 0 {
		lines := make([]string, len(channels))
		for i, ch := range channels {
			lines[i] = ch.String()
		}
		text = strings.Join(lines, "\n")
	}
	return in.reply(ctx, chatID, "Markdown", text)
}

// editChannel handles "/edit_channel_data <service> <channel id> [environment]".
func (in *Interpreter) editChannel(ctx context.Context, chatID int64, tokens []string) error {
	service, rawID, env := arg(tokens, 1), arg(tokens, 2), arg(tokens, 3)
	if service == "" || rawID == "" {
		return in.reply(ctx, chatID, "Markdown", ReplyMissingArgs)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return in.reply(ctx, chatID, "Markdown", ReplyChannelNotFound)
	}

	found, err := in.withChannel(id, func() (bool, error) {
		ch, err := in.channels.GetChannel(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("getting channel %d: %w", id, err)
		}
		ch.ServiceTag = &service
		ch.EnvironmentTag = store.StringPtr(env)
		if err := in.channels.SaveChannel(ctx, ch); err != nil {
			return false, fmt.Errorf("saving channel %d: %w", id, err)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return in.reply(ctx, chatID, "Markdown", ReplyChannelNotFound)
	}

	in.logger.Info("channel configured", "channel_id", id, "service", service, "environment", env)
	return in.reply(ctx, chatID, "Markdown", ReplyChannelUpdated)
}

func (in *Interpreter) handleChatMember(ctx context.Context, upd gjson.Result) Outcome {
	out := Outcome{Kind: KindChatMember}

	member := upd.Get("new_chat_member")
	if member.Get("user.id").Int() != in.botID {
		return out
	}

	chatID := upd.Get("chat.id").Int()
	title := upd.Get("chat.title").String()
	status := member.Get("status").String()

	var err error
	switch status {
	case "left", "kicked":
		err = in.channelLeft(ctx, chatID, title)
	case "administrator", "restricted":
		err = in.channelJoined(ctx, chatID, title)
	default:
		return out
	}

	if err != nil {
		in.logger.Error("membership change failed", "chat_id", chatID, "status", status, "error", err)
		return out
	}
	out.Handled = true
	return out
}

func (in *Interpreter) channelLeft(ctx context.Context, chatID int64, title string) error {
	_, err := in.withChannel(chatID, func() (bool, error) {
		err := in.channels.DeleteChannel(ctx, chatID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("deleting channel %d: %w", chatID, err)
		}
		return err == nil, nil
	})
	if err != nil {
		return err
	}

	in.logger.Info("bot left channel", "chat_id", chatID, "title", title)
	return in.reply(ctx, in.ownerID, "", "The bot left the channel: "+title)
}

func (in *Interpreter) channelJoined(ctx context.Context, chatID int64, title string) error {
	_, err := in.withChannel(chatID, func() (bool, error) {
		ch, err := in.channels.GetChannel(ctx, chatID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			ch = &store.Channel{ID: chatID}
		case err != nil:
			return false, fmt.Errorf("getting channel %d: %w", chatID, err)
		}
		ch.Name = title
		if err := in.channels.SaveChannel(ctx, ch); err != nil {
			return false, fmt.Errorf("saving channel %d: %w", chatID, err)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	in.logger.Info("bot added to channel", "chat_id", chatID, "title", title)
	text := fmt.Sprintf("Bot added to channel %s (%d), the service still needs to be configured.", title, chatID)
	return in.reply(ctx, in.ownerID, "", text)
}

// withChannel runs fn while holding the lock of one channel id.
func (in *Interpreter) withChannel(id int64, fn func() (bool, error)) (bool, error) {
	unlock := in.locks.lock(id)
	defer unlock()
	return fn()
}

func (in *Interpreter) reply(ctx context.Context, chatID int64, parseMode, text string) error {
	params := botapi.NewParams("chat_id", chatID)
	if parseMode != "" {
		params.Set("parse_mode", parseMode)
	}
	params.Set("text", text)

	if _, err := in.sender.Send(ctx, "sendMessage", params); err != nil {
		return fmt.Errorf("replying to %d: %w", chatID, err)
	}
	return nil
}

// commandName strips the "@botname" suffix Telegram adds in groups.
func commandName(token string) string {
	if i := strings.IndexByte(token, '@'); i > 0 {
		return token[:i]
	}
	return token
}

func arg(tokens []string, i int) string {
	if i < len(tokens) {
		return tokens[i]
	}
	return ""
}

var markdownV2Escaper = strings.NewReplacer(
	`_`, `\_`, `*`, `\*`, `[`, `\[`, `]`, `\]`, `(`, `\(`, `)`, `\)`,
	`~`, `\~`, "`", "\\`", `>`, `\>`, `#`, `\#`, `+`, `\+`, `-`, `\-`,
	`=`, `\=`, `|`, `\|`, `{`, `\{`, `}`, `\}`, `.`, `\.`, `!`, `\!`,
	`\`, `\\`,
)

// EscapeMarkdownV2 escapes the characters MarkdownV2 reserves.
func EscapeMarkdownV2(s string) string {
	return markdownV2Escaper.Replace(s)
}
