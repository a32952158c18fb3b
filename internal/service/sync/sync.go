package sync

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quickpic/client/internal/envelope"
	"github.com/quickpic/client/internal/identity"
	"github.com/quickpic/client/internal/model"
	"github.com/quickpic/client/internal/repository/store"
	"github.com/quickpic/client/internal/utils/log"
)

// Transport is the request/response contract with the relay server. Errors
// on this boundary are opaque network failures and always retryable.
type Transport interface {
	Send(ctx context.Context, toUsername string, env, sig []byte, contentType model.ContentType) (*model.SendMessageResponse, error)
	FetchInbound(ctx context.Context) ([]model.RemoteMessage, error)
	AcknowledgeDeleted(ctx context.Context, id uuid.UUID) error
}

type Options struct {
	Interval           time.Duration // periodic sync cadence
	Retention          time.Duration // local hard-delete window
	SweepInterval      time.Duration // how often the retention sweep runs
	MinRefreshInterval time.Duration // user-triggered refresh throttle
}

func (o *Options) fillDefaults() {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 24 * time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Hour
	}
	if o.MinRefreshInterval <= 0 {
		o.MinRefreshInterval = 5 * time.Second
	}
}

// Engine drives the message lifecycle: pull inbound ciphertext, decrypt and
// persist it, and acknowledge server deletion for viewed messages. All
// collaborators are injected; the engine holds no global state.
type Engine struct {
	store     *store.Store
	keys      *identity.KeyPair
	transport Transport
	opts      Options
	refresh   *rate.Limiter

	mu        sync.Mutex
	lastSweep time.Time
}

func New(st *store.Store, keys *identity.KeyPair, transport Transport, opts Options) *Engine {
	opts.fillDefaults()
	return &Engine{
		store:     st,
		keys:      keys,
		transport: transport,
		opts:      opts,
		refresh:   rate.NewLimiter(rate.Every(opts.MinRefreshInterval), 1),
	}
}

// Run executes one pass immediately, then one per interval until ctx is
// cancelled. In-flight passes complete rather than being aborted mid-item;
// cancellation only stops the schedule.
func (e *Engine) Run(ctx context.Context) {
	passCtx := context.WithoutCancel(ctx)
	e.syncOnce(passCtx)

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.syncOnce(passCtx)
		}
	}
}

// SyncNow is the user-triggered refresh. Calls inside the throttle window
// are dropped so rapid UI events collapse into one pass.
func (e *Engine) SyncNow(ctx context.Context) bool {
	if !e.refresh.Allow() {
		log.Debug("refresh throttled")
		return false
	}
	e.syncOnce(ctx)
	return true
}

func (e *Engine) syncOnce(ctx context.Context) {
	e.ingest(ctx)
	e.purgePass(ctx)
	e.maybeSweep(ctx)
}

// ingest pulls undelivered ciphertext and lands it in the store. Items are
// processed sequentially so dedup checks observe a consistent view.
func (e *Engine) ingest(ctx context.Context) {
	inbound, err := e.transport.FetchInbound(ctx)
	if err != nil {
		log.Error("fetch inbound failed", zap.Error(err))
		return
	}

	for i := range inbound {
		remote := &inbound[i]
		exists, err := e.store.MessageExists(ctx, remote.ID)
		if err != nil {
			log.Error("dedup check failed", zap.String("id", remote.ID.String()), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		if err := e.ingestOne(ctx, remote); err != nil {
			// Codec failures are permanent: the blob will never decrypt, so
			// drop it. Store failures are retried implicitly because the
			// feed re-serves unacknowledged messages by id.
			log.Error("drop inbound message",
				zap.String("id", remote.ID.String()),
				zap.String("from", remote.FromUsername),
				zap.Error(err))
		}
	}
}

func (e *Engine) ingestOne(ctx context.Context, remote *model.RemoteMessage) error {
	sender, err := identity.PeerKeysFromBase64(remote.FromPublicKey, remote.FromSigningKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(remote.Signature)
	if err != nil {
		return envelope.ErrVerification
	}
	plaintext, err := envelope.Decrypt(remote.EncryptedContent, sig, sender, e.keys)
	if err != nil {
		return err
	}

	peer := model.Peer{
		UserID:     remote.FromUserID,
		Username:   remote.FromUsername,
		PublicKey:  remote.FromPublicKey,
		SigningKey: remote.FromSigningKey,
		Since:      remote.CreatedAt,
	}
	if _, err := e.store.UpsertConversation(ctx, peer); err != nil {
		return err
	}

	msg := &model.StoredMessage{
		ID:             remote.ID,
		ConversationID: remote.FromUserID,
		Direction:      model.DirectionReceived,
		ContentType:    remote.ContentType,
		Plaintext:      plaintext,
		RawEnvelope:    remote.EncryptedContent,
		CreatedAt:      remote.CreatedAt,
		ReceivedAt:     time.Now().UTC(),
	}
	if err := e.store.SaveMessage(ctx, msg); err != nil {
		return err
	}
	return e.store.IncrementUnread(ctx, remote.FromUserID)
}

// purgePass asks the server to delete every viewed-but-unacknowledged
// message. Failures keep the message in the pending set; acknowledgement is
// idempotent on the server, so unbounded retry is safe.
func (e *Engine) purgePass(ctx context.Context) {
	pending, err := e.store.ListPendingPurge(ctx)
	if err != nil {
		log.Error("list pending purge failed", zap.Error(err))
		return
	}
	for _, msg := range pending {
		if err := e.transport.AcknowledgeDeleted(ctx, msg.ID); err != nil {
			log.Warn("acknowledge deletion failed, will retry",
				zap.String("id", msg.ID.String()), zap.Error(err))
			continue
		}
		if err := e.store.MarkPurged(ctx, msg.ID); err != nil {
			log.Error("mark purged failed", zap.String("id", msg.ID.String()), zap.Error(err))
		}
	}
}

func (e *Engine) maybeSweep(ctx context.Context) {
	e.mu.Lock()
	due := time.Since(e.lastSweep) >= e.opts.SweepInterval
	if due {
		e.lastSweep = time.Now()
	}
	e.mu.Unlock()
	if !due {
		return
	}
	n, err := e.store.PurgeOlderThan(ctx, e.opts.Retention)
	if err != nil {
		log.Error("retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("retention sweep removed expired messages", zap.Int64("count", n))
	}
}

// Send encrypts plaintext for peer, hands it to the transport, and records
// the sent message locally under the server-assigned id.
func (e *Engine) Send(ctx context.Context, peer model.Peer, plaintext []byte, contentType model.ContentType) (*model.StoredMessage, error) {
	recipient, err := identity.PeerKeysFromBase64(peer.PublicKey, peer.SigningKey)
	if err != nil {
		return nil, err
	}
	env, sig, err := envelope.Encrypt(plaintext, recipient, e.keys)
	if err != nil {
		return nil, err
	}
	resp, err := e.transport.Send(ctx, peer.Username, env, sig, contentType)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.UpsertConversation(ctx, peer); err != nil {
		return nil, err
	}
	msg := &model.StoredMessage{
		ID:             resp.ID,
		ConversationID: peer.UserID,
		Direction:      model.DirectionSent,
		ContentType:    contentType,
		Plaintext:      plaintext,
		Viewed:         true, // the sender has seen their own message
		CreatedAt:      resp.CreatedAt,
		ReceivedAt:     resp.CreatedAt,
	}
	if err := e.store.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
