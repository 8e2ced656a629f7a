package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/vocabulary-sync/internal/metrics"
	"github.com/iliyamo/vocabulary-sync/internal/model"
	"github.com/iliyamo/vocabulary-sync/internal/queue"
)

// Deferrer accepts failed pushes for later redelivery.
type Deferrer interface {
	Publish(ctx context.Context, ev queue.SyncEvent) error
}

// Dispatcher pushes identity, config and usage snapshots between nodes.
type Dispatcher struct {
	client           *Client
	authoritativeURL string
	deferrer         Deferrer
	metrics          *metrics.Metrics
	log              *slog.Logger
}

// NewDispatcher wires a dispatcher.  authoritativeURL is empty on the
// authoritative node itself, which makes stats pushes no-ops.  deferrer may
// be nil to disable redelivery.
func NewDispatcher(client *Client, authoritativeURL string, deferrer Deferrer, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, authoritativeURL: authoritativeURL, deferrer: deferrer, metrics: m, log: log}
}

// PushUser sends the full identity snapshot to a data node.
func (d *Dispatcher) PushUser(ctx context.Context, target string, u *model.User) error {
	return d.push(ctx, TypeSyncUser, target, PathSyncUser, NewUserPayload(u))
}

// PushUserConfig sends subscription and quota fields to a data node.
func (d *Dispatcher) PushUserConfig(ctx context.Context, target string, u *model.User) error {
	return d.push(ctx, TypeSyncUserConfig, target, PathSyncUserConfig, NewConfigPayload(u))
}

// PushUserStats reports the user's usage to the authoritative node.
func (d *Dispatcher) PushUserStats(ctx context.Context, u *model.User) error {
	if d.authoritativeURL == "" {
		return nil
	}
	return d.push(ctx, TypeSyncUserStats, d.authoritativeURL, PathSyncUserStats, NewStatsPayload(u))
}

// FetchUser reads a user snapshot from another node.
func (d *Dispatcher) FetchUser(ctx context.Context, target, username string) (*model.User, error) {
	var p UserPayload
	if err := d.client.Do(ctx, http.MethodGet, target, PathFetchUser+url.PathEscape(username), nil, &p); err != nil {
		return nil, err
	}
	return p.User(), nil
}

// Resend delivers a deferred event with a fresh signature.
func (d *Dispatcher) Resend(ctx context.Context, ev queue.SyncEvent) error {
	err := d.client.Do(ctx, http.MethodPost, ev.Target, ev.Path, ev.Payload, nil)
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	d.metrics.SyncDeferred.WithLabelValues(ev.Type, result).Inc()
	return err
}

func (d *Dispatcher) push(ctx context.Context, typ, target, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	start := time.Now()
	err = d.client.Do(ctx, http.MethodPost, target, path, body, nil)
	d.metrics.SyncPushDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	if err == nil {
		d.metrics.SyncPushes.WithLabelValues(typ, "ok").Inc()
		return nil
	}
	d.metrics.SyncPushes.WithLabelValues(typ, "error").Inc()
	d.log.Warn("sync push failed", slog.String("type", typ), slog.String("target", target), slog.Any("error", err))
	d.deferPush(ctx, typ, target, path, body, err)
	return err
}

// deferPush queues a failed push unless the receiver answered definitively.
func (d *Dispatcher) deferPush(ctx context.Context, typ, target, path string, body []byte, cause error) {
	if d.deferrer == nil || errors.Is(cause, ErrRemoteNotFound) {
		return
	}
	var se *StatusError
	if errors.As(cause, &se) && se.Code < 500 {
		return
	}
	ev := queue.SyncEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Target:    target,
		Path:      path,
		Payload:   body,
		Attempt:   1,
		CreatedAt: time.Now().UTC(),
		LastError: cause.Error(),
	}
	// the triggering request may already be cancelled
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.deferrer.Publish(pctx, ev); err != nil {
		d.metrics.SyncDeferred.WithLabelValues(typ, "lost").Inc()
		return
	}
	d.metrics.SyncDeferred.WithLabelValues(typ, "queued").Inc()
}
