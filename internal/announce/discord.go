// Package announce posts new personal records to a Discord channel.
package announce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/park285/cubetimer/internal/domain"
	"github.com/park285/cubetimer/internal/eventbus"
	"github.com/park285/cubetimer/internal/msgcat"
	"go.uber.org/zap"
)

const (
	// Discord allows roughly this many channel posts per minute per bot.
	defaultInterval = time.Minute / 25
	defaultQueue    = 64
	maxContentChars = 1000
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(channelID, content string) error
}

type discordSender struct {
	dg *discordgo.Session
}

func (d discordSender) Send(channelID, content string) error {
	_, err := d.dg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	return err
}

type Option func(*Announcer)

func WithLogger(l *zap.Logger) Option {
	return func(a *Announcer) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithMessages(c *msgcat.Catalog) Option {
	return func(a *Announcer) { a.msgs = c }
}

// WithDisplayName resolves an owner id to the name shown in the channel.
func WithDisplayName(fn func(ownerID string) string) Option {
	return func(a *Announcer) {
		if fn != nil {
			a.displayName = fn
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(a *Announcer) {
		if d > 0 {
			a.interval = d
		}
	}
}

type Announcer struct {
	sender      Sender
	channelID   string
	msgs        *msgcat.Catalog
	displayName func(string) string
	logger      *zap.Logger
	interval    time.Duration
	queue       chan string
	closeFn     func() error
}

func New(sender Sender, channelID string, opts ...Option) *Announcer {
	a := &Announcer{
		sender:      sender,
		channelID:   strings.TrimSpace(channelID),
		displayName: shortOwner,
		logger:      zap.NewNop(),
		interval:    defaultInterval,
		queue:       make(chan string, defaultQueue),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewDiscord builds an announcer backed by a bot token. Posting only uses
// the REST API, so no gateway connection is opened.
func NewDiscord(token, channelID string, opts ...Option) (*Announcer, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("discord token and channel id are required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	a := New(discordSender{dg: dg}, channelID, opts...)
	a.closeFn = dg.Close
	return a, nil
}

// Attach subscribes the announcer to record events.
func (a *Announcer) Attach(bus *eventbus.Bus[domain.RecordEvent]) (unsubscribe func()) {
	return bus.Subscribe(a.Enqueue)
}

// Enqueue formats ev and queues it; when the queue is full the message is dropped.
func (a *Announcer) Enqueue(ev domain.RecordEvent) {
	msg := a.format(ev)
	if msg == "" {
		return
	}
	select {
	case a.queue <- msg:
	default:
		a.logger.Warn("announce_queue_full", zap.String("owner_id", ev.OwnerID), zap.String("kind", string(ev.Kind)))
	}
}

func (a *Announcer) format(ev domain.RecordEvent) string {
	text := a.msgs.RenderOr("record."+string(ev.Kind), map[string]any{"Value": ev.FormattedValue}, ev.FormattedValue)
	owner := a.displayName(ev.OwnerID)
	msg := a.msgs.RenderOr("record.announce", map[string]any{"Owner": owner, "Text": text}, owner+": "+text)
	if r := []rune(msg); len(r) > maxContentChars {
		msg = string(r[:maxContentChars])
	}
	return msg
}

// Run posts queued messages one per interval until ctx is done.
func (a *Announcer) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case msg := <-a.queue:
				a.send(msg)
			default:
			}
		}
	}
}

func (a *Announcer) send(msg string) {
	if a.sender == nil || a.channelID == "" {
		return
	}
	if err := a.sender.Send(a.channelID, msg); err != nil {
		a.logger.Warn("announce_send_failed", zap.Error(err))
	}
}

func (a *Announcer) Close() error {
	if a == nil || a.closeFn == nil {
		return nil
	}
	return a.closeFn()
}

func shortOwner(ownerID string) string {
	if r := []rune(ownerID); len(r) > 8 {
		return string(r[:8])
	}
	return ownerID
}
