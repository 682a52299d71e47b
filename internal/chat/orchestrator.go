// Package chat coordinates the chat core: it binds the REST client, the
// channel connection, the conversation registry and the timeline store, and it
// is the only component whose side effects cross those boundaries. The UI
// talks to the Orchestrator and reads timelines back out of it, nothing else.
package chat

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"partychat/internal/model"
	"partychat/internal/registry"
	"partychat/internal/timeline"
)

// API is what the orchestrator needs from the REST backend.
type API interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	Messages(ctx context.Context, convID string) ([]model.Message, error)
	Send(ctx context.Context, convID, content string, file *model.FileMeta) (model.Message, error)
	Upload(ctx context.Context, name string, r io.Reader) (model.FileMeta, error)
}

// Subscription releases one channel event handler.
type Subscription interface {
	Cancel()
}

// Channel is the live event channel. *socket.Conn satisfies it through the
// adapter in channel.go.
type Channel interface {
	JoinRoom(convID string) error
	MarkRead(convID string) error
	Emit(event string, payload any) error
	On(event string, h func(data json.RawMessage)) Subscription
}

// DialFunc builds (or returns the existing) channel connection for the
// current identity.
type DialFunc func(ctx context.Context) (Channel, error)

// SelectionState is the per-selection lifecycle: idle until a conversation is
// picked, loading while its history fetch is in flight, then active.
type SelectionState int

const (
	StateIdle SelectionState = iota
	StateLoading
	StateActive
)

// UpdateKind labels a coarse state-change notification for the UI.
type UpdateKind int

const (
	ConversationsUpdated UpdateKind = iota
	TimelineUpdated
	HistoryFailed
	SendFailed
)

type Update struct {
	Kind           UpdateKind
	ConversationID string
	Err            error
}

// Attachment is a send-intent file. LocalURL is the caller's local object
// reference shown until the upload returns real metadata.
type Attachment struct {
	Name     string
	Size     int64
	Data     io.Reader
	LocalURL string
}

type Orchestrator struct {
	api  API
	dial DialFunc
	self string
	log  zerolog.Logger

	reg   *registry.Registry
	store *timeline.Store

	mu    sync.Mutex
	ch    Channel
	subs  []Subscription
	gen   uint64
	state SelectionState

	updates chan Update
}

func New(api API, dial DialFunc, self string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		api:     api,
		dial:    dial,
		self:    self,
		log:     log,
		reg:     registry.New(),
		store:   timeline.NewStore(),
		updates: make(chan Update, 64),
	}
}

// Updates is the notification stream the UI renders from. Notifications are
// coarse; the UI re-reads Conversations/Timeline for actual data.
func (o *Orchestrator) Updates() <-chan Update { return o.updates }

// Self returns the identity the orchestrator acts as.
func (o *Orchestrator) Self() string { return o.self }

func (o *Orchestrator) Conversations() []model.Conversation { return o.reg.List() }

func (o *Orchestrator) Conversation(convID string) (model.Conversation, bool) {
	return o.reg.Get(convID)
}

func (o *Orchestrator) Timeline(convID string) []model.Message { return o.store.Timeline(convID) }

func (o *Orchestrator) Active() string { return o.reg.Active() }

func (o *Orchestrator) State() SelectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start connects the channel, registers the inbound handlers and loads the
// conversation list.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.bind(ctx); err != nil {
		return err
	}
	return o.loadConversations(ctx)
}

// Reconnect rebinds to a fresh channel connection after a disconnect. Old
// subscriptions are always released first so handlers never double-register.
func (o *Orchestrator) Reconnect(ctx context.Context) error {
	return o.bind(ctx)
}

func (o *Orchestrator) bind(ctx context.Context) error {
	ch, err := o.dial(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, sub := range o.subs {
		sub.Cancel()
	}
	o.subs = o.subs[:0]
	o.ch = ch
	o.subs = append(o.subs,
		ch.On(model.EventMessageNew, o.onMessageNew),
		ch.On(model.EventConversationUpdated, o.onConversationUpdated),
	)

	// Rejoin the active room so a reconnect keeps receiving live events.
	if active := o.reg.Active(); active != "" {
		if err := ch.JoinRoom(active); err != nil {
			o.log.Warn().Err(err).Str("conversation", active).Msg("rejoin failed")
		}
	}
	return nil
}

// Close releases all channel subscriptions. The connection itself belongs to
// the socket manager.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sub := range o.subs {
		sub.Cancel()
	}
	o.subs = nil
	o.ch = nil
}

func (o *Orchestrator) loadConversations(ctx context.Context) error {
	convs, err := o.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	for _, conv := range convs {
		o.reg.Upsert(conv)
	}
	o.notify(Update{Kind: ConversationsUpdated})
	return nil
}

// Refresh re-fetches the conversation list on demand.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return o.loadConversations(ctx)
}

// Select makes convID the active conversation: join its room, mark it read,
// reset its unread badge and fetch history in the background. The fetch is
// tagged with the conversation and a generation counter; a stale completion
// still merges into its own conversation (harmless, the merge is additive and
// keyed) but never flips the selection state of a newer selection.
func (o *Orchestrator) Select(ctx context.Context, convID string) {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.state = StateLoading
	ch := o.ch
	o.mu.Unlock()

	o.reg.Select(convID)

	if ch != nil {
		if err := ch.JoinRoom(convID); err != nil {
			o.log.Warn().Err(err).Str("conversation", convID).Msg("join failed")
		}
		if err := ch.MarkRead(convID); err != nil {
			o.log.Warn().Err(err).Str("conversation", convID).Msg("read-mark failed")
		} else {
			o.reg.ResetUnread(convID)
		}
	}
	o.store.MarkRead(convID)
	o.notify(Update{Kind: ConversationsUpdated})

	go o.fetchHistory(ctx, convID, gen)
}

func (o *Orchestrator) fetchHistory(ctx context.Context, convID string, gen uint64) {
	msgs, err := o.api.Messages(ctx, convID)

	o.mu.Lock()
	current := gen == o.gen
	if current {
		o.state = StateActive
	}
	o.mu.Unlock()

	if err != nil {
		o.log.Warn().Err(err).Str("conversation", convID).Msg("history fetch failed")
		if current {
			o.notify(Update{Kind: HistoryFailed, ConversationID: convID, Err: err})
		}
		return
	}

	o.store.SetHistory(convID, msgs)
	o.notify(Update{Kind: TimelineUpdated, ConversationID: convID})
}

// Deselect returns the orchestrator to idle without touching any timeline.
func (o *Orchestrator) Deselect() {
	o.mu.Lock()
	o.gen++
	o.state = StateIdle
	o.mu.Unlock()
	o.reg.Select("")
}

// Send runs the optimistic send flow for convID, which is captured here at
// send time: a placeholder with a local id and sending status goes into the
// timeline immediately, the attachment (if any) is uploaded, the REST send
// persists the message, and on success the placeholder is replaced by the
// confirmed message and a best-effort channel emit notifies the room. On
// failure the placeholder is kept with failed status so the user can see it
// and retry; it is never silently dropped.
func (o *Orchestrator) Send(ctx context.Context, convID, content string, att *Attachment) (model.Message, error) {
	local := model.Message{
		ID:             model.NewLocalID(),
		ConversationID: convID,
		SenderID:       o.self,
		Content:        content,
		Type:           attachmentType(att),
		CreatedAt:      time.Now(),
		Status:         model.StatusSending,
	}
	if att != nil {
		local.FileName = att.Name
		local.FileSize = att.Size
		local.FileURL = att.LocalURL
	}
	o.store.Append(convID, local)
	o.notify(Update{Kind: TimelineUpdated, ConversationID: convID})

	var fileMeta *model.FileMeta
	if att != nil {
		meta, err := o.api.Upload(ctx, att.Name, att.Data)
		if err != nil {
			return o.failSend(convID, local, err)
		}
		fileMeta = &meta
	}

	confirmed, err := o.api.Send(ctx, convID, content, fileMeta)
	if err != nil {
		return o.failSend(convID, local, err)
	}

	o.store.Replace(convID, local.ID, confirmed)
	o.reg.Touch(convID, preview(confirmed), confirmed.CreatedAt)
	o.notify(Update{Kind: TimelineUpdated, ConversationID: convID})
	o.notify(Update{Kind: ConversationsUpdated})

	// Best effort: the message is already persisted, the emit only makes it
	// show up for peers without a refetch.
	o.mu.Lock()
	ch := o.ch
	o.mu.Unlock()
	if ch != nil {
		if err := ch.Emit(model.EventMessageSend, model.SendPayload{
			ConversationID: convID,
			Message:        confirmed,
			TempID:         local.ID,
		}); err != nil {
			o.log.Debug().Err(err).Msg("channel emit skipped")
		}
	}
	return confirmed, nil
}

func (o *Orchestrator) failSend(convID string, local model.Message, err error) (model.Message, error) {
	o.log.Warn().Err(err).Str("conversation", convID).Msg("send failed")
	o.store.SetStatus(convID, local.ID, model.StatusFailed)
	o.notify(Update{Kind: SendFailed, ConversationID: convID, Err: err})
	local.Status = model.StatusFailed
	return local, err
}

func (o *Orchestrator) onMessageNew(data json.RawMessage) {
	var p model.NewMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		o.log.Warn().Err(err).Msg("malformed message:new payload")
		return
	}
	msg := p.Message
	if msg.ConversationID == "" || msg.ID == "" {
		return
	}

	active := o.reg.Active()
	own := msg.SenderID == o.self

	switch {
	case own && p.TempID != "":
		// Echo of our own send (possibly from another tab/device); correlate
		// with the placeholder. Degrades to an idempotent append.
		o.store.Replace(msg.ConversationID, p.TempID, msg)
	case msg.ConversationID == active || o.store.Hydrated(msg.ConversationID):
		o.store.Append(msg.ConversationID, msg)
	default:
		// Never selected: stay lazy, history loads on first selection.
	}

	if !own && msg.ConversationID != active {
		o.reg.IncrementUnread(msg.ConversationID)
	}
	o.reg.Touch(msg.ConversationID, preview(msg), msg.CreatedAt)

	o.notify(Update{Kind: TimelineUpdated, ConversationID: msg.ConversationID})
	o.notify(Update{Kind: ConversationsUpdated})
}

func (o *Orchestrator) onConversationUpdated(data json.RawMessage) {
	var p model.ConversationUpdatedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		o.log.Warn().Err(err).Msg("malformed conversation:updated payload")
		return
	}
	if p.ConversationID == "" {
		return
	}
	o.reg.Touch(p.ConversationID, p.LastMessage, time.Now())
	o.notify(Update{Kind: ConversationsUpdated})
}

func (o *Orchestrator) notify(u Update) {
	select {
	case o.updates <- u:
	default:
		// UI is behind; it re-reads full state on the next update anyway.
	}
}

func preview(msg model.Message) string {
	if msg.Content != "" {
		return msg.Content
	}
	return msg.FileName
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

func attachmentType(att *Attachment) model.MessageType {
	if att == nil {
		return model.TypeText
	}
	if imageExts[strings.ToLower(filepath.Ext(att.Name))] {
		return model.TypeImage
	}
	return model.TypeFile
}
