package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mediahub/store"
)

type sentRecord struct {
	ChatID  int64
	Kind    string
	Body    string
	ReplyTo int
	Items   []MediaItem
}

// fakePlatform records sends and fails on demand, one queued error per call.
type fakePlatform struct {
	mu     sync.Mutex
	sent   []sentRecord
	nextID int
	fail   map[int64][]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{nextID: 1000, fail: make(map[int64][]error)}
}

func (f *fakePlatform) failNext(chatID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[chatID] = append(f.fail[chatID], err)
}

func (f *fakePlatform) record(chatID int64, kind, body string, reply Reply, items []MediaItem) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.fail[chatID]; len(queue) > 0 {
		err := queue[0]
		f.fail[chatID] = queue[1:]
		return 0, err
	}
	f.nextID++
	f.sent = append(f.sent, sentRecord{ChatID: chatID, Kind: kind, Body: body, ReplyTo: reply.MessageID, Items: items})
	return f.nextID, nil
}

func (f *fakePlatform) sentTo(chatID int64) []sentRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentRecord
	for _, r := range f.sent {
		if r.ChatID == chatID {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakePlatform) SendText(_ context.Context, chatID int64, text string, reply Reply) (int, error) {
	return f.record(chatID, "text", text, reply, nil)
}
func (f *fakePlatform) SendPhoto(_ context.Context, chatID int64, fileID, caption string, reply Reply) (int, error) {
	return f.record(chatID, "photo", caption, reply, nil)
}
func (f *fakePlatform) SendVideo(_ context.Context, chatID int64, fileID, caption string, reply Reply) (int, error) {
	return f.record(chatID, "video", caption, reply, nil)
}
func (f *fakePlatform) SendAnimation(_ context.Context, chatID int64, fileID, caption string, reply Reply) (int, error) {
	return f.record(chatID, "animation", caption, reply, nil)
}
func (f *fakePlatform) SendAudio(_ context.Context, chatID int64, fileID, caption string, reply Reply) (int, error) {
	return f.record(chatID, "audio", caption, reply, nil)
}
func (f *fakePlatform) SendDocument(_ context.Context, chatID int64, fileID, caption string, reply Reply) (int, error) {
	return f.record(chatID, "document", caption, reply, nil)
}
func (f *fakePlatform) SendVoice(_ context.Context, chatID int64, fileID, caption string, reply Reply) (int, error) {
	return f.record(chatID, "voice", caption, reply, nil)
}
func (f *fakePlatform) SendVideoNote(_ context.Context, chatID int64, fileID string, length int, reply Reply) (int, error) {
	return f.record(chatID, "video_note", "", reply, nil)
}
func (f *fakePlatform) SendSticker(_ context.Context, chatID int64, fileID string, reply Reply) (int, error) {
	return f.record(chatID, "sticker", "", reply, nil)
}
func (f *fakePlatform) SendMediaGroup(_ context.Context, chatID int64, items []MediaItem, reply Reply) ([]int, error) {
	f.mu.Lock()
	if queue := f.fail[chatID]; len(queue) > 0 {
		err := queue[0]
		f.fail[chatID] = queue[1:]
		f.mu.Unlock()
		return nil, err
	}
	ids := make([]int, len(items))
	for i := range items {
		f.nextID++
		ids[i] = f.nextID
	}
	f.sent = append(f.sent, sentRecord{ChatID: chatID, Kind: "album", ReplyTo: reply.MessageID, Items: items})
	f.mu.Unlock()
	return ids, nil
}

func newTestDistributor(t *testing.T) (*Distributor, *fakePlatform, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	c := newTestCache(t)
	fp := newFakePlatform()

	limiter := NewRateLimiter(NewGlobalLimiter(c, 1000, false), c)
	d := New(Config{
		Store:      s,
		Cache:      c,
		Platform:   fp,
		Gate:       NewGate(s, c, 30, nil),
		Resolver:   NewResolver(s),
		Limiter:    limiter,
		Aliases:    NewAliasService(s, c, "test-salt"),
		Signatures: NewSignatureSource(s, "hubbot"),
		Metrics:    NewMetrics(),
		Workers:    2,
		QueueSize:  64,
	})
	return d, fp, s
}

// drain processes queued tasks synchronously until the queue is empty.
func drain(ctx context.Context, d *Distributor) {
	for {
		select {
		case task := <-d.queue:
			d.process(ctx, task)
		default:
			return
		}
	}
}

func textMessage(sourceChat int64, messageID int, userID int64, text string) *NormalizedMessage {
	return &NormalizedMessage{
		Kind:            KindText,
		SourceChatID:    sourceChat,
		SourceMessageID: messageID,
		SourceUserID:    userID,
		Text:            text,
		ReceivedAt:      time.Now(),
	}
}

func TestDistributeFansOut(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	registerChat(t, s, 300, store.ChatKindChannel)

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "hello everyone")))
	drain(ctx, d)

	// The source itself is skipped (self-send off by default).
	require.Empty(t, fp.sentTo(100))
	require.Len(t, fp.sentTo(200), 1)
	require.Len(t, fp.sentTo(300), 1)

	body := fp.sentTo(200)[0].Body
	require.Contains(t, body, "hello everyone")
	require.Contains(t, body, "— u-", "author alias tag is appended")

	// Every delivery landed in the send log.
	entries, err := s.ForwardLookup(ctx, 100, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestDistributeSelfSendFlag(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	allow := true
	_, err := s.UpdateChat(ctx, &store.UpdateChat{ChatID: 100, AllowSelfSend: &allow})
	require.NoError(t, err)

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "echo")))
	drain(ctx, d)
	require.Len(t, fp.sentTo(100), 1)
}

func TestDistributeSelfSendBypassesPaywall(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	allow := true
	_, err := s.UpdateChat(ctx, &store.UpdateChat{ChatID: 100, AllowSelfSend: &allow})
	require.NoError(t, err)
	backdateRegistration(t, s, 100, 31*24*time.Hour)

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "echo only")))
	drain(ctx, d)

	require.Empty(t, fp.sentTo(200), "cross-chat delivery stays withheld")
	require.Equal(t, int64(1), d.gate.MissedToday(ctx, 100, time.Now()))

	var echoed bool
	for _, r := range fp.sentTo(100) {
		if strings.Contains(r.Body, "echo only") {
			echoed = true
		}
	}
	require.True(t, echoed, "expired source still receives its own copy")
}

func TestDistributeRespectsGlobalPause(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	require.NoError(t, s.SetConfig(ctx, store.ConfigPaused, "true"))

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "dropped")))
	drain(ctx, d)
	require.Empty(t, fp.sent)
}

func TestDistributeSkipsInPausedDestination(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	paused := true
	_, err := s.UpdateChat(ctx, &store.UpdateChat{ChatID: 200, InPaused: &paused})
	require.NoError(t, err)

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "quiet")))
	drain(ctx, d)
	require.Empty(t, fp.sentTo(200))
}

func TestDistributeWithholdsAndNudges(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	backdateRegistration(t, s, 100, 31*24*time.Hour)

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "paywalled")))
	drain(ctx, d)

	require.Empty(t, fp.sentTo(200), "delivery is withheld for a non-entitled source")
	require.Equal(t, int64(1), d.gate.MissedToday(ctx, 100, time.Now()))

	// The nudge goes out asynchronously, at most once.
	require.Eventually(t, func() bool {
		return len(fp.sentTo(100)) == 1
	}, 2*time.Second, 20*time.Millisecond)
	require.Contains(t, fp.sentTo(100)[0].Body, "not redistributed")

	// A second withheld message inside the cooldown does not nudge again.
	require.NoError(t, d.Distribute(ctx, textMessage(100, 2, 55, "still paywalled")))
	drain(ctx, d)
	time.Sleep(100 * time.Millisecond)
	require.Len(t, fp.sentTo(100), 1)
}

func TestProcessForbiddenDeactivates(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	fp.failNext(200, &PlatformError{Kind: ErrForbidden, Err: fmt.Errorf("bot was blocked")})

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "blocked")))
	drain(ctx, d)

	chat, err := s.GetChat(ctx, 200)
	require.NoError(t, err)
	require.False(t, chat.Active)

	// Queued tasks to the dead destination are dropped without a send.
	d.queue <- &SendTask{Msg: textMessage(100, 2, 55, "late"), DestChat: 200, DestKind: store.ChatKindPrivate}
	drain(ctx, d)
	require.Empty(t, fp.sentTo(200))
}

func TestProcessMigrationReroutes(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, -200, store.ChatKindGroup)
	fp.failNext(-200, &PlatformError{Kind: ErrMigrated, MigrateTo: -100200})

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "moving")))
	drain(ctx, d)

	// The re-enqueue is asynchronous; wait for the re-routed delivery.
	require.Eventually(t, func() bool {
		drain(ctx, d)
		return len(fp.sentTo(-100200)) == 1
	}, 2*time.Second, 20*time.Millisecond)

	migrated, err := s.GetChat(ctx, -100200)
	require.NoError(t, err)
	require.Equal(t, store.ChatKindSupergroup, migrated.Kind)
	_, err = s.GetChat(ctx, -200)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessRateLimitedRetries(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	fp.failNext(200, &PlatformError{Kind: ErrTooManyRequests, RetryAfter: 20 * time.Millisecond})

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "retry me")))
	drain(ctx, d)

	require.Eventually(t, func() bool {
		drain(ctx, d)
		return len(fp.sentTo(200)) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestProcessAlbumRecordsEveryPart(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)

	album := &NormalizedMessage{
		Kind:            KindAlbum,
		SourceChatID:    100,
		SourceMessageID: 10,
		SourceUserID:    55,
		AlbumID:         "grp",
		Album: []*NormalizedMessage{
			{Kind: KindPhoto, SourceChatID: 100, SourceMessageID: 10, FileID: "f1", FileUniqueID: "u1", Caption: "first"},
			{Kind: KindPhoto, SourceChatID: 100, SourceMessageID: 11, FileID: "f2", FileUniqueID: "u2"},
		},
		ReceivedAt: time.Now(),
	}
	require.NoError(t, d.Distribute(ctx, album))
	drain(ctx, d)

	sent := fp.sentTo(200)
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Items, 2)
	require.True(t, strings.Contains(sent[0].Items[0].Caption, "first"))
	require.Contains(t, sent[0].Items[0].Caption, "— u-", "attribution rides on the first part")
	require.Empty(t, sent[0].Items[1].Caption)

	// One send-log row per part, so replies to any part resolve.
	entries, err := s.ForwardLookup(ctx, 100, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entries, err = s.ForwardLookup(ctx, 100, 11)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestProcessReplyAnchor(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)

	// First message fans out and is logged.
	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "original")))
	drain(ctx, d)
	first := fp.sentTo(200)
	require.Len(t, first, 1)

	// A reply referencing the origin threads onto the delivered copy.
	// The destination chat is on cooldown from the first send, so this takes
	// about one cooldown interval.
	reply := textMessage(100, 2, 66, "replying")
	reply.ReplySourceChatID = 100
	reply.ReplySourceMessageID = 1
	require.NoError(t, d.Distribute(ctx, reply))
	drain(ctx, d)

	sent := fp.sentTo(200)
	require.Len(t, sent, 2)
	destCopy, err := s.DestMessageID(ctx, 100, 1, 200)
	require.NoError(t, err)
	require.Equal(t, destCopy, sent[1].ReplyTo)
}

func TestPropagateEdit(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)
	registerChat(t, s, 300, store.ChatKindPrivate)

	require.NoError(t, d.Distribute(ctx, textMessage(100, 1, 55, "v1")))
	drain(ctx, d)
	require.Len(t, fp.sentTo(200), 1)
	require.Len(t, fp.sentTo(300), 1)

	// Deactivate one destination; the edit only reaches the live one.
	require.NoError(t, s.DeactivateChat(ctx, 300))

	origCopy, err := s.DestMessageID(ctx, 100, 1, 200)
	require.NoError(t, err)

	edited := textMessage(100, 1, 55, "v2 corrected")
	require.NoError(t, d.PropagateEdit(ctx, edited))
	drain(ctx, d)

	sent := fp.sentTo(200)
	require.Len(t, sent, 2)
	require.Contains(t, sent[1].Body, "v2 corrected")
	require.Zero(t, sent[0].ReplyTo)
	// The re-send is anchored on the copy it supersedes.
	require.Equal(t, origCopy, sent[1].ReplyTo)
	require.Len(t, fp.sentTo(300), 1)
}

func TestPropagateEditWithoutCopiesDistributes(t *testing.T) {
	d, fp, s := newTestDistributor(t)
	ctx := context.Background()

	registerChat(t, s, 100, store.ChatKindPrivate)
	registerChat(t, s, 200, store.ChatKindPrivate)

	// No prior copies logged (e.g. pruned): falls back to a normal fan-out.
	require.NoError(t, d.PropagateEdit(ctx, textMessage(100, 9, 55, "late edit")))
	drain(ctx, d)
	require.Len(t, fp.sentTo(200), 1)
}
