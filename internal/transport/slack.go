package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/spec-kit/incidence-service/internal/config"
	"github.com/spec-kit/incidence-service/internal/domain"
)

const maxMediaBytes = 20 << 20

// SlackTransport talks to Slack over the Web API and receives events over
// Socket Mode. Thread replies stand in for quoted messages: the thread
// parent is the quoted notice.
type SlackTransport struct {
	client *slack.Client
	socket *socketmode.Client
	logger *zap.Logger

	botUserID  string
	fetchMedia func(ctx context.Context, fileID string) (*domain.Attachment, error)

	mu    sync.RWMutex
	cache map[string]Conversation // name -> conversation
}

// NewSlackTransport builds the Web API and Socket Mode clients.
func NewSlackTransport(cfg config.SlackConfig, logger *zap.Logger) *SlackTransport {
	client := slack.New(cfg.BotToken,
		slack.OptionDebug(cfg.Debug),
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	socket := socketmode.New(client,
		socketmode.OptionDebug(cfg.Debug),
		socketmode.OptionLog(zap.NewStdLog(logger.Named("socketmode"))),
	)
	t := &SlackTransport{
		client: client,
		socket: socket,
		logger: logger,
		cache:  make(map[string]Conversation),
	}
	t.fetchMedia = t.download
	return t
}

func (t *SlackTransport) SendText(ctx context.Context, conversationID, text string) error {
	_, _, err := t.client.PostMessageContext(ctx, conversationID, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post message to %s: %w", conversationID, err)
	}
	return nil
}

func (t *SlackTransport) SendMedia(ctx context.Context, conversationID string, data []byte, mimeType, caption string) error {
	_, err := t.client.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:        conversationID,
		Reader:         bytes.NewReader(data),
		FileSize:       len(data),
		Filename:       filenameFor(mimeType),
		InitialComment: caption,
	})
	if err != nil {
		return fmt.Errorf("upload file to %s: %w", conversationID, err)
	}
	return nil
}

// ResolveConversation accepts a channel id or a channel name with or
// without the leading '#'. Names are cached.
func (t *SlackTransport) ResolveConversation(ctx context.Context, nameOrID string) (Conversation, error) {
	if nameOrID == "" {
		return Conversation{}, errors.New("conversation name or id is empty")
	}
	if isConversationID(nameOrID) {
		ch, err := t.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: nameOrID})
		if err != nil {
			return Conversation{}, fmt.Errorf("conversation info %s: %w", nameOrID, err)
		}
		return Conversation{ID: ch.ID, Name: ch.Name}, nil
	}

	name := strings.TrimPrefix(nameOrID, "#")
	t.mu.RLock()
	conv, ok := t.cache[name]
	t.mu.RUnlock()
	if ok {
		return conv, nil
	}

	conv, err := t.lookupByName(ctx, name)
	if err != nil {
		return Conversation{}, err
	}
	t.mu.Lock()
	t.cache[name] = conv
	t.mu.Unlock()
	t.logger.Info("resolved conversation", zap.String("name", name), zap.String("conversation_id", conv.ID))
	return conv, nil
}

func (t *SlackTransport) lookupByName(ctx context.Context, name string) (Conversation, error) {
	params := &slack.GetConversationsParameters{
		ExcludeArchived: true,
		Limit:           1000,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := t.client.GetConversationsContext(ctx, params)
		if err != nil {
			return Conversation{}, fmt.Errorf("list conversations: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return Conversation{ID: ch.ID, Name: ch.Name}, nil
			}
		}
		if cursor == "" {
			return Conversation{}, fmt.Errorf("conversation %q not found", name)
		}
		params.Cursor = cursor
	}
}

// ClearCache drops resolved names so the next routing reload re-resolves.
func (t *SlackTransport) ClearCache() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = make(map[string]Conversation)
}

func (t *SlackTransport) QuotedMessage(ctx context.Context, msg domain.Message) (*domain.Message, error) {
	if !msg.HasQuotedMessage || msg.QuotedMessageID == "" {
		return nil, nil
	}
	msgs, _, _, err := t.client.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
		ChannelID: msg.ConversationID,
		Timestamp: msg.QuotedMessageID,
		Limit:     1,
		Inclusive: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch thread parent %s: %w", msg.QuotedMessageID, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	parent := msgs[0]
	return &domain.Message{
		ID:             parent.Timestamp,
		ConversationID: msg.ConversationID,
		Author:         parent.User,
		Body:           parent.Text,
		Timestamp:      parseTimestamp(parent.Timestamp),
		HasMedia:       len(parent.Files) > 0,
	}, nil
}

// Listen identifies the bot user and runs the Socket Mode loop until ctx
// is cancelled. Events are acknowledged before they are handled and each
// is handled on its own goroutine.
func (t *SlackTransport) Listen(ctx context.Context, h Handler) error {
	auth, err := t.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	t.botUserID = auth.UserID
	t.logger.Info("slack socket mode starting", zap.String("bot_user_id", auth.UserID))

	go t.dispatch(ctx, h)

	if err := t.socket.RunContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("socket mode: %w", err)
	}
	return nil
}

func (t *SlackTransport) dispatch(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-t.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					t.socket.Ack(*evt.Request)
				}
				go t.handleEventsAPI(ctx, apiEvent, h)
			case socketmode.EventTypeInteractive, socketmode.EventTypeSlashCommand:
				if evt.Request != nil {
					t.socket.Ack(*evt.Request)
				}
			case socketmode.EventTypeConnecting:
				t.logger.Info("connecting to slack")
			case socketmode.EventTypeConnected:
				t.logger.Info("connected to slack")
			case socketmode.EventTypeConnectionError:
				t.logger.Warn("slack connection error", zap.Any("data", evt.Data))
			}
		}
	}
}

func (t *SlackTransport) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent, h Handler) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	in, ok := inboundMessage(ev, t.botUserID)
	if !ok {
		return
	}
	if in.edit {
		h.HandleEdit(ctx, in.msg)
		return
	}
	if in.fileID != "" {
		att, err := t.fetchMedia(ctx, in.fileID)
		if err != nil {
			t.logger.Warn("media download failed", zap.String("conversation_id", ev.Channel), zap.Error(err))
		}
		in.msg.Media = att
	}
	h.Handle(ctx, in.msg)
}

type inbound struct {
	msg    domain.Message
	edit   bool
	fileID string
}

// inboundMessage converts a message event. Messages from bots, from the
// bot itself and housekeeping subtypes are dropped.
func inboundMessage(ev *slackevents.MessageEvent, botUserID string) (inbound, bool) {
	if ev.SubType == "message_changed" {
		edited := ev.Message
		if edited == nil || edited.BotID != "" || edited.User == "" || edited.User == botUserID {
			return inbound{}, false
		}
		return inbound{edit: true, msg: domain.Message{
			ID:             edited.Timestamp,
			ConversationID: ev.Channel,
			Author:         edited.User,
			Body:           edited.Text,
			Timestamp:      parseTimestamp(edited.Timestamp),
		}}, true
	}

	if ev.BotID != "" || ev.User == "" || ev.User == botUserID {
		return inbound{}, false
	}
	switch ev.SubType {
	case "", "file_share", "thread_broadcast":
	default:
		return inbound{}, false
	}

	in := inbound{msg: domain.Message{
		ID:             ev.TimeStamp,
		ConversationID: ev.Channel,
		Author:         ev.User,
		Body:           ev.Text,
		Timestamp:      parseTimestamp(ev.TimeStamp),
	}}
	if ev.ThreadTimeStamp != "" && ev.ThreadTimeStamp != ev.TimeStamp {
		in.msg.HasQuotedMessage = true
		in.msg.QuotedMessageID = ev.ThreadTimeStamp
	}
	if ev.Message != nil && len(ev.Message.Files) > 0 {
		in.msg.HasMedia = true
		in.fileID = ev.Message.Files[0].ID
	}
	return in, true
}

func (t *SlackTransport) download(ctx context.Context, fileID string) (*domain.Attachment, error) {
	file, _, _, err := t.client.GetFileInfoContext(ctx, fileID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("file info %s: %w", fileID, err)
	}
	if file.Size > maxMediaBytes {
		return nil, fmt.Errorf("file %s is %d bytes, above the %d byte limit", fileID, file.Size, maxMediaBytes)
	}
	var buf bytes.Buffer
	if err := t.client.GetFileContext(ctx, file.URLPrivateDownload, &buf); err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return &domain.Attachment{Data: buf.Bytes(), MimeType: file.Mimetype, FileName: file.Name}, nil
}

// parseTimestamp converts a Slack "seconds.micros" timestamp.
func parseTimestamp(ts string) time.Time {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now()
	}
	var micros int64
	if frac != "" {
		if len(frac) > 6 {
			frac = frac[:6]
		}
		frac += strings.Repeat("0", 6-len(frac))
		micros, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, micros*int64(time.Microsecond))
}

// isConversationID reports whether s looks like a channel, group or DM id.
func isConversationID(s string) bool {
	if len(s) < 9 || len(s) > 15 {
		return false
	}
	switch s[0] {
	case 'C', 'G', 'D':
	default:
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func filenameFor(mimeType string) string {
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return "adjunto" + exts[0]
	}
	return "adjunto"
}
