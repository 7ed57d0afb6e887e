package media

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/metrics"
)

var tracer = otel.Tracer("media-adapter")

// LiveKitAdapter is the concrete Adapter backed by LiveKit's Room and Egress
// server APIs.
type LiveKitAdapter struct {
	rooms  *lksdk.RoomServiceClient
	egress *lksdk.EgressClient
	cb     *gobreaker.CircuitBreaker
}

// NewLiveKitAdapter constructs an adapter against a LiveKit deployment.
func NewLiveKitAdapter(url, apiKey, apiSecret string) *LiveKitAdapter {
	st := gobreaker.Settings{
		Name:        "media-adapter",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("media-adapter").Set(v)
		},
	}
	return &LiveKitAdapter{
		rooms:  lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		egress: lksdk.NewEgressClient(url, apiKey, apiSecret),
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// call executes fn through the circuit breaker and the bounded retry policy
// (spec §4.3: 3 attempts, base 200ms, cap 2s, retrying only transport-level
// unavailability). NotFound/Conflict are classified and returned immediately,
// never retried.
func call[T any](ctx context.Context, a *LiveKitAdapter, op string, fn func() (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "media."+op, trace.WithAttributes(attribute.String("media.op", op)))
	defer span.End()

	result, err := doCall(ctx, a, op, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	return result, err
}

func doCall[T any](ctx context.Context, a *LiveKitAdapter, op string, fn func() (T, error)) (T, error) {
	var zero T
	policy := func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxInterval = 2 * time.Second
		return b
	}

	result, err := backoff.Retry(ctx, func() (T, error) {
		res, err := a.cb.Execute(func() (interface{}, error) {
			return fn()
		})
		if err != nil {
			if err == gobreaker.ErrOpenState {
				metrics.CircuitBreakerFailures.WithLabelValues("media-adapter").Inc()
				return zero, apierr.Unavailablef("MEDIA_CIRCUIT_OPEN", err, "media adapter circuit open for %s", op)
			}
			mapped := classify(op, err)
			if apiErr, ok := apierr.As(mapped); ok && apiErr.Kind == apierr.DependencyUnavailable {
				return zero, mapped
			}
			return zero, backoff.Permanent(mapped)
		}
		return res.(T), nil
	}, backoff.WithBackOff(policy()), backoff.WithMaxTries(3))

	if err != nil {
		if apiErr, ok := apierr.As(err); ok {
			return zero, apiErr
		}
		return zero, classify(op, err)
	}
	return result, nil
}

// classify maps a gRPC error from LiveKit into a typed apierr.Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return apierr.Unavailablef("MEDIA_UNAVAILABLE", err, "media server call %s failed", op)
	}
	switch st.Code() {
	case codes.NotFound:
		return apierr.NotFoundf("MEDIA_NOT_FOUND", "%s: %s", op, st.Message())
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return apierr.Conflictf("MEDIA_CONFLICT", "%s: %s", op, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return apierr.Unavailablef("MEDIA_UNAVAILABLE", err, "%s: %s", op, st.Message())
	default:
		return apierr.Wrap(apierr.Internal, "MEDIA_INTERNAL", fmt.Sprintf("%s: %s", op, st.Message()), err)
	}
}

func (a *LiveKitAdapter) CreateRoom(ctx context.Context, opts RoomOptions) (*RoomInfo, error) {
	room, err := call(ctx, a, "createRoom", func() (*livekit.Room, error) {
		return a.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
			Name:             opts.Name,
			EmptyTimeout:     uint32(opts.EmptyTimeout.Seconds()),
			DepartureTimeout: uint32(opts.DepartureTimeout.Seconds()),
			Metadata:         opts.Metadata,
		})
	})
	if err != nil {
		return nil, err
	}
	return toRoomInfo(room), nil
}

func (a *LiveKitAdapter) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := call(ctx, a, "deleteRoom", func() (*livekit.DeleteRoomResponse, error) {
		return a.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: roomID})
	})
	return err
}

func (a *LiveKitAdapter) ListRooms(ctx context.Context) ([]*RoomInfo, error) {
	res, err := call(ctx, a, "listRooms", func() (*livekit.ListRoomsResponse, error) {
		return a.rooms.ListRooms(ctx, &livekit.ListRoomsRequest{})
	})
	if err != nil {
		return nil, err
	}
	out := make([]*RoomInfo, 0, len(res.Rooms))
	for _, r := range res.Rooms {
		out = append(out, toRoomInfo(r))
	}
	return out, nil
}

func (a *LiveKitAdapter) RoomExists(ctx context.Context, roomID string) (bool, error) {
	_, err := a.GetRoom(ctx, roomID)
	if err == nil {
		return true, nil
	}
	if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.NotFound {
		return false, nil
	}
	return false, err
}

func (a *LiveKitAdapter) GetRoom(ctx context.Context, roomID string) (*RoomInfo, error) {
	res, err := call(ctx, a, "getRoom", func() (*livekit.ListRoomsResponse, error) {
		return a.rooms.ListRooms(ctx, &livekit.ListRoomsRequest{Names: []string{roomID}})
	})
	if err != nil {
		return nil, err
	}
	if len(res.Rooms) == 0 {
		return nil, apierr.NotFoundf("MEDIA_ROOM_NOT_FOUND", "room %q not found on media server", roomID)
	}
	return toRoomInfo(res.Rooms[0]), nil
}

func (a *LiveKitAdapter) GetParticipant(ctx context.Context, roomID, identity string) (*ParticipantInfo, error) {
	p, err := call(ctx, a, "getParticipant", func() (*livekit.ParticipantInfo, error) {
		return a.rooms.GetParticipant(ctx, &livekit.RoomParticipantIdentity{Room: roomID, Identity: identity})
	})
	if err != nil {
		return nil, err
	}
	return &ParticipantInfo{
		Identity: p.Identity,
		Name:     p.Name,
		Metadata: p.Metadata,
		JoinedAt: time.Unix(p.JoinedAt, 0),
	}, nil
}

func (a *LiveKitAdapter) RemoveParticipant(ctx context.Context, roomID, identity string) error {
	_, err := call(ctx, a, "removeParticipant", func() (*livekit.RemoveParticipantResponse, error) {
		return a.rooms.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{Room: roomID, Identity: identity})
	})
	return err
}

func (a *LiveKitAdapter) UpdateParticipantMetadata(ctx context.Context, roomID, identity, metadataJSON string) error {
	_, err := call(ctx, a, "updateParticipantMetadata", func() (*livekit.ParticipantInfo, error) {
		return a.rooms.UpdateParticipant(ctx, &livekit.UpdateParticipantRequest{
			Room:     roomID,
			Identity: identity,
			Metadata: metadataJSON,
		})
	})
	return err
}

func (a *LiveKitAdapter) SendData(ctx context.Context, roomID string, payload []byte, opts DataOptions) error {
	req := &livekit.SendDataRequest{
		Room:                  roomID,
		Data:                  payload,
		DestinationIdentities: opts.Destinations,
	}
	if opts.Topic != "" {
		req.Topic = &opts.Topic
	}
	_, err := call(ctx, a, "sendData", func() (*livekit.SendDataResponse, error) {
		return a.rooms.SendData(ctx, req)
	})
	return err
}

func (a *LiveKitAdapter) StartRoomComposite(ctx context.Context, roomID string, out FileOutput, opts CompositeOptions) (*EgressInfo, error) {
	layout := opts.Layout
	if layout == "" {
		layout = "grid"
	}
	info, err := call(ctx, a, "startRoomComposite", func() (*livekit.EgressInfo, error) {
		return a.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
			RoomName: roomID,
			Layout:   layout,
			Output: &livekit.RoomCompositeEgressRequest_File{
				File: &livekit.EncodedFileOutput{
					FileType: livekit.EncodedFileType_MP4,
					Filepath: out.Filepath,
				},
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return toEgressInfo(info), nil
}

func (a *LiveKitAdapter) StopEgress(ctx context.Context, egressID string) error {
	_, err := call(ctx, a, "stopEgress", func() (*livekit.EgressInfo, error) {
		return a.egress.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: egressID})
	})
	return err
}

func (a *LiveKitAdapter) GetActiveEgress(ctx context.Context, roomID string) (*EgressInfo, error) {
	active, err := a.GetInProgressRecordingsEgress(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, apierr.NotFoundf("MEDIA_EGRESS_NOT_FOUND", "no active egress for room %q", roomID)
	}
	return active[0], nil
}

func (a *LiveKitAdapter) GetEgress(ctx context.Context, roomID, egressID string) (*EgressInfo, error) {
	res, err := call(ctx, a, "getEgress", func() (*livekit.ListEgressResponse, error) {
		return a.egress.ListEgress(ctx, &livekit.ListEgressRequest{RoomName: roomID, EgressId: egressID})
	})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, apierr.NotFoundf("MEDIA_EGRESS_NOT_FOUND", "egress %q not found for room %q", egressID, roomID)
	}
	return toEgressInfo(res.Items[0]), nil
}

func (a *LiveKitAdapter) GetInProgressRecordingsEgress(ctx context.Context, roomID string) ([]*EgressInfo, error) {
	res, err := call(ctx, a, "listEgress", func() (*livekit.ListEgressResponse, error) {
		return a.egress.ListEgress(ctx, &livekit.ListEgressRequest{RoomName: roomID, Active: true})
	})
	if err != nil {
		return nil, err
	}
	out := make([]*EgressInfo, 0, len(res.Items))
	for _, e := range res.Items {
		out = append(out, toEgressInfo(e))
	}
	return out, nil
}

func toRoomInfo(r *livekit.Room) *RoomInfo {
	return &RoomInfo{
		Name:            r.Name,
		NumParticipants: int(r.NumParticipants),
		CreationTime:    time.Unix(r.CreationTime, 0),
	}
}

func toEgressInfo(e *livekit.EgressInfo) *EgressInfo {
	info := &EgressInfo{
		EgressID:  e.EgressId,
		RoomName:  e.RoomName,
		Status:    e.Status.String(),
		StartedAt: time.Unix(0, e.StartedAt),
	}
	if e.EndedAt != 0 {
		info.EndedAt = time.Unix(0, e.EndedAt)
	}
	if fileRes := e.GetFileResults(); len(fileRes) > 0 {
		info.FilePath = fileRes[0].Filename
		info.SizeBytes = fileRes[0].Size
		info.Duration = time.Duration(fileRes[0].Duration)
	}
	return info
}
