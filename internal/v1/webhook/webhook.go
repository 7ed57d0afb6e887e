// Package webhook implements the Webhook Sink (spec §4.4): it verifies
// signed deliveries from the media server, deduplicates retries across
// replicas via the Lock Manager, and routes by event kind into the Room and
// Recording services' idempotent state-transition methods.
package webhook

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/recording"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/room"
	"go.uber.org/zap"
)

// Event kinds routed by Sink.Handle (spec §4.4).
const (
	EventRoomStarted   = "room_started"
	EventRoomFinished  = "room_finished"
	EventEgressStarted = "egress_started"
	EventEgressUpdated = "egress_updated"
	EventEgressEnded   = "egress_ended"
)

// Terminal egress statuses observed on egress_ended (spec §4.9's
// complete/failed/aborted, reported by the media server as EGRESS_COMPLETE
// or EGRESS_FAILED/EGRESS_ABORTED).
const egressStatusComplete = "EGRESS_COMPLETE"

// dedupTTL bounds how long a webhook_{event}_{id} lock blocks a retried
// delivery from being reprocessed; it only needs to outlive the slowest
// handler, not the recording or meeting itself.
const dedupTTL = 30 * time.Second

// Sink verifies and routes webhook deliveries from the media server.
type Sink struct {
	rooms      *room.Service
	recordings *recording.Service
	locks      *lock.Manager
	apiKey     string
	apiSecret  []byte
}

// NewSink constructs a Sink. apiKey/apiSecret are the media server's
// credentials — the same pair the media adapter itself authenticates with —
// used here to verify the HS256 JWT LiveKit signs every webhook delivery
// with (spec §4.4 "verify signature").
func NewSink(rooms *room.Service, recordings *recording.Service, locks *lock.Manager, apiKey, apiSecret string) *Sink {
	return &Sink{rooms: rooms, recordings: recordings, locks: locks, apiKey: apiKey, apiSecret: []byte(apiSecret)}
}

// signatureClaims mirrors the claims LiveKit signs a webhook delivery's
// Authorization header with: iss = the sending API key, sub = the
// base64-encoded SHA-256 hash of the raw request body.
type signatureClaims struct {
	jwt.RegisteredClaims
}

// verify checks authHeader's JWT signature against apiSecret, that its
// issuer matches apiKey, and that its subject hashes to body — rejecting the
// delivery with Unauthenticated on any mismatch (spec §4.4).
func (s *Sink) verify(authHeader string, body []byte) error {
	if authHeader == "" {
		return apierr.Unauthenticatedf("WEBHOOK_SIGNATURE_MISSING", "missing webhook signature")
	}

	var claims signatureClaims
	_, err := jwt.ParseWithClaims(authHeader, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("webhook: unexpected signing method %v", t.Header["alg"])
		}
		return s.apiSecret, nil
	})
	if err != nil {
		return apierr.Unauthenticatedf("WEBHOOK_SIGNATURE_INVALID", "invalid webhook signature: %v", err)
	}
	if claims.Issuer != s.apiKey {
		return apierr.Unauthenticatedf("WEBHOOK_SIGNATURE_INVALID", "webhook signature issuer mismatch")
	}

	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(claims.Subject), []byte(want)) != 1 {
		return apierr.Unauthenticatedf("WEBHOOK_SIGNATURE_INVALID", "webhook body hash mismatch")
	}
	return nil
}

// event is the subset of a LiveKit webhook delivery's JSON body the sink
// routes on. LiveKit's webhook payloads are protojson-marshaled
// WebhookEvent messages, which emit exactly this camelCase shape for the
// primitive/message fields used here.
type event struct {
	Event      string      `json:"event"`
	ID         string      `json:"id"`
	Room       *roomInfo   `json:"room"`
	EgressInfo *egressInfo `json:"egressInfo"`
}

type roomInfo struct {
	Name string `json:"name"`
}

type egressInfo struct {
	EgressID string `json:"egressId"`
	RoomName string `json:"roomName"`
	Status   string `json:"status"`
	File     *struct {
		Size     int64 `json:"size,string"`
		Duration int64 `json:"duration,string"`
	} `json:"file"`
}

// Handle verifies, deduplicates and routes a single webhook delivery. A
// successful return means the delivery was either processed, already being
// processed by another replica, or failed in a way that must not be
// retried; only a signature-verification failure is ever returned to the
// caller (spec §4.4: "Webhook handlers never surface errors to the media
// server unless signature verification failed; processing failures are
// logged and the delivery is acknowledged to avoid retry storms").
func (s *Sink) Handle(ctx context.Context, authHeader string, body []byte) error {
	if err := s.verify(authHeader, body); err != nil {
		return err
	}

	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		logging.Warn(ctx, "webhook: malformed body, acknowledging without processing", zap.Error(err))
		return nil
	}

	dedupID := evt.ID
	if dedupID == "" {
		dedupID = fmt.Sprintf("%x", sha256.Sum256(body))
	}
	var names lock.Names
	l, err := s.locks.Acquire(ctx, names.Webhook(evt.Event, dedupID), dedupTTL)
	if err != nil {
		logging.Warn(ctx, "webhook: dedup lock acquisition failed, acknowledging without processing", zap.String("event", evt.Event), zap.Error(err))
		return nil
	}
	if l == nil {
		logging.Info(ctx, "webhook: duplicate delivery ignored", zap.String("event", evt.Event), zap.String("delivery_id", dedupID))
		return nil
	}

	if err := s.route(ctx, evt); err != nil {
		logging.Warn(ctx, "webhook: handler failed, acknowledging to avoid retry storm", zap.String("event", evt.Event), zap.Error(err))
	}
	return nil
}

func (s *Sink) route(ctx context.Context, evt event) error {
	switch evt.Event {
	case EventRoomStarted:
		return s.handleRoomStarted(ctx, evt)
	case EventRoomFinished:
		return s.handleRoomFinished(ctx, evt)
	case EventEgressStarted:
		return s.handleEgressStarted(ctx, evt)
	case EventEgressUpdated:
		return s.handleEgressUpdated(ctx, evt)
	case EventEgressEnded:
		return s.handleEgressEnded(ctx, evt)
	default:
		logging.Info(ctx, "webhook: unrecognised event kind acknowledged", zap.String("event", evt.Event))
		return nil
	}
}
