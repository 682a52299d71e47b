package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partychat/internal/api"
	"partychat/internal/chat"
	"partychat/internal/model"
	"partychat/internal/server"
	"partychat/internal/socket"
)

type participant struct {
	id     string
	client *api.Client
	mgr    *socket.Manager
	orch   *chat.Orchestrator
}

type harness struct {
	t  *testing.T
	ts *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := server.New("test-secret", zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{t: t, ts: ts}
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
}

// login registers and logs a participant in, wiring the full client stack.
func (h *harness) login(username string) *participant {
	h.t.Helper()
	ctx := context.Background()

	client := api.NewClient(h.ts.URL)
	require.NoError(h.t, client.Register(ctx, username, "secret-"+username))
	auth, err := client.Login(ctx, username, "secret-"+username)
	require.NoError(h.t, err)

	mgr := socket.NewManager(h.wsURL(), zerolog.Nop())
	h.t.Cleanup(mgr.Shutdown)

	orch := chat.New(client, chat.DialWith(mgr, auth.ID, auth.AccessToken), auth.ID, zerolog.Nop())
	return &participant{id: auth.ID, client: client, mgr: mgr, orch: orch}
}

func (p *participant) start(t *testing.T) {
	t.Helper()
	require.NoError(t, p.orch.Start(context.Background()))
	t.Cleanup(p.orch.Close)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func TestRestConversationAndHistoryFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.login("alice")
	bob := h.login("bob")

	conv, err := alice.client.StartConversation(ctx, bob.id)
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	// Finding the same pair again returns the existing conversation.
	again, err := bob.client.StartConversation(ctx, alice.id)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	sent, err := alice.client.Send(ctx, conv.ID, "hello bob", nil)
	require.NoError(t, err)
	assert.False(t, model.IsLocalID(sent.ID))
	assert.Equal(t, model.StatusSent, sent.Status)

	msgs, err := bob.client.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello bob", msgs[0].Content)

	// Server-side unread accounting feeds the summaries.
	convs, err := bob.client.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, 1, convs[0].UnreadCount)
	assert.Equal(t, "hello bob", convs[0].LastMessagePreview)

	convs, err = alice.client.ListConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, convs[0].UnreadCount, "senders do not unread their own messages")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	client := api.NewClient(h.ts.URL)
	require.NoError(t, client.Register(ctx, "carol", "right"))

	_, err := client.Login(ctx, "carol", "wrong")
	require.Error(t, err)

	err = client.Register(ctx, "carol", "again")
	require.Error(t, err, "duplicate usernames are rejected")
}

func TestUploadRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.login("alice")

	meta, err := alice.client.Upload(ctx, "invite.pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "invite.pdf", meta.Name)
	assert.Equal(t, int64(9), meta.Size)
	assert.True(t, strings.HasPrefix(meta.URL, "/uploads/"))
}

func TestLiveMessageDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.login("alice")
	bob := h.login("bob")
	conv, err := alice.client.StartConversation(ctx, bob.id)
	require.NoError(t, err)

	alice.start(t)
	bob.start(t)

	alice.orch.Select(ctx, conv.ID)
	bob.orch.Select(ctx, conv.ID)
	eventually(t, func() bool { return bob.orch.State() == chat.StateActive }, "bob history loaded")

	_, err = alice.orch.Send(ctx, conv.ID, "surprise party saturday", nil)
	require.NoError(t, err)

	eventually(t, func() bool {
		tl := bob.orch.Timeline(conv.ID)
		return len(tl) == 1 && tl[0].Content == "surprise party saturday"
	}, "bob receives the live message")

	tl := bob.orch.Timeline(conv.ID)
	assert.False(t, model.IsLocalID(tl[0].ID))

	// Both sides converge on the same single message.
	eventually(t, func() bool { return len(alice.orch.Timeline(conv.ID)) == 1 }, "alice timeline settled")
	assert.Equal(t, tl[0].ID, alice.orch.Timeline(conv.ID)[0].ID)
}

func TestConversationUpdatePushReachesNonRoomMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.login("alice")
	bob := h.login("bob")
	conv, err := alice.client.StartConversation(ctx, bob.id)
	require.NoError(t, err)

	alice.start(t)
	bob.start(t) // bob never selects the conversation

	alice.orch.Select(ctx, conv.ID)
	_, err = alice.orch.Send(ctx, conv.ID, "cake or pie?", nil)
	require.NoError(t, err)

	// conversation:updated is pushed per user, not per room, so bob's badge
	// data stays fresh without joining.
	eventually(t, func() bool {
		c, ok := bob.orch.Conversation(conv.ID)
		return ok && c.LastMessagePreview == "cake or pie?"
	}, "bob sees the preview update")

	// Lazy hydration: bob's timeline stays empty until he selects.
	assert.Empty(t, bob.orch.Timeline(conv.ID))

	// The authoritative unread count comes with the next summary fetch.
	require.NoError(t, bob.orch.Refresh(ctx))
	c, _ := bob.orch.Conversation(conv.ID)
	assert.Equal(t, 1, c.UnreadCount)
}

func TestReconnectDoesNotDuplicateTimeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.login("alice")
	bob := h.login("bob")
	conv, err := alice.client.StartConversation(ctx, bob.id)
	require.NoError(t, err)

	alice.start(t)
	bob.start(t)
	alice.orch.Select(ctx, conv.ID)
	bob.orch.Select(ctx, conv.ID)
	eventually(t, func() bool { return bob.orch.State() == chat.StateActive }, "bob active")

	_, err = alice.orch.Send(ctx, conv.ID, "one", nil)
	require.NoError(t, err)
	eventually(t, func() bool { return len(bob.orch.Timeline(conv.ID)) == 1 }, "first message arrived")

	// Drop and re-establish bob's channel while the conversation stays
	// selected. The rebind must release the old handlers.
	bob.mgr.Disconnect(bob.id)
	require.NoError(t, bob.orch.Reconnect(ctx))
	require.NoError(t, bob.orch.Reconnect(ctx)) // idempotent: reuses the live conn

	_, err = alice.orch.Send(ctx, conv.ID, "two", nil)
	require.NoError(t, err)

	eventually(t, func() bool { return len(bob.orch.Timeline(conv.ID)) == 2 }, "second message arrived once")
	tl := bob.orch.Timeline(conv.ID)
	assert.Equal(t, "one", tl[0].Content)
	assert.Equal(t, "two", tl[1].Content)

	// Give any stray duplicate a moment to show up before asserting.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, bob.orch.Timeline(conv.ID), 2)
}

func TestAttachmentSendOverTheWire(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.login("alice")
	bob := h.login("bob")
	conv, err := alice.client.StartConversation(ctx, bob.id)
	require.NoError(t, err)

	alice.start(t)
	bob.start(t)
	alice.orch.Select(ctx, conv.ID)
	bob.orch.Select(ctx, conv.ID)
	eventually(t, func() bool { return bob.orch.State() == chat.StateActive }, "bob active")

	confirmed, err := alice.orch.Send(ctx, conv.ID, "", &chat.Attachment{
		Name: "banner.png",
		Size: 8,
		Data: strings.NewReader("png-data"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.TypeImage, confirmed.Type)
	assert.True(t, strings.HasPrefix(confirmed.FileURL, "/uploads/"))

	eventually(t, func() bool {
		tl := bob.orch.Timeline(conv.ID)
		return len(tl) == 1 && tl[0].Type == model.TypeImage
	}, "bob receives the image message")
	assert.Equal(t, "banner.png", bob.orch.Timeline(conv.ID)[0].FileName)
}
