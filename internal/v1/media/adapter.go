// Package media implements the Media Adapter: the narrow interface the Room,
// Recording and Member services use to talk to the underlying media server,
// plus a concrete LiveKit implementation (spec §4.3).
package media

import (
	"context"
	"time"
)

// ParticipantInfo mirrors the subset of a media-server participant the
// control plane needs.
type ParticipantInfo struct {
	Identity string
	Name     string
	Metadata string
	JoinedAt time.Time
}

// RoomInfo mirrors the subset of a media-server room the control plane needs.
type RoomInfo struct {
	Name            string
	NumParticipants int
	CreationTime    time.Time
}

// EgressInfo describes an in-progress or finished recording egress.
type EgressInfo struct {
	EgressID  string
	RoomName  string
	Status    string // EGRESS_STARTING, EGRESS_ACTIVE, EGRESS_ENDING, EGRESS_COMPLETE, EGRESS_FAILED, EGRESS_ABORTED
	StartedAt time.Time
	EndedAt   time.Time
	FilePath  string
	SizeBytes int64
	Duration  time.Duration
}

// RoomOptions configures CreateRoom.
type RoomOptions struct {
	Name             string
	EmptyTimeout     time.Duration
	DepartureTimeout time.Duration
	Metadata         string
}

// FileOutput configures startRoomComposite's output target.
type FileOutput struct {
	Filepath string
}

// CompositeOptions configures startRoomComposite beyond the file output.
type CompositeOptions struct {
	Layout string
}

// DataOptions scopes a sendData call.
type DataOptions struct {
	Topic        string
	Destinations []string
}

// Adapter is the abstract operation set over the media server (spec §4.3).
// Every call returns either the typed result or a typed *apierr.Error whose
// Kind is NotFound, Conflict, DependencyUnavailable, or Internal. Only
// DependencyUnavailable is meaningfully retryable by the caller.
type Adapter interface {
	CreateRoom(ctx context.Context, opts RoomOptions) (*RoomInfo, error)
	DeleteRoom(ctx context.Context, roomID string) error
	ListRooms(ctx context.Context) ([]*RoomInfo, error)
	RoomExists(ctx context.Context, roomID string) (bool, error)
	GetRoom(ctx context.Context, roomID string) (*RoomInfo, error)
	GetParticipant(ctx context.Context, roomID, identity string) (*ParticipantInfo, error)
	RemoveParticipant(ctx context.Context, roomID, identity string) error
	UpdateParticipantMetadata(ctx context.Context, roomID, identity, metadataJSON string) error
	SendData(ctx context.Context, roomID string, payload []byte, opts DataOptions) error

	StartRoomComposite(ctx context.Context, roomID string, out FileOutput, opts CompositeOptions) (*EgressInfo, error)
	StopEgress(ctx context.Context, egressID string) error
	GetActiveEgress(ctx context.Context, roomID string) (*EgressInfo, error)
	GetEgress(ctx context.Context, roomID, egressID string) (*EgressInfo, error)
	GetInProgressRecordingsEgress(ctx context.Context, roomID string) ([]*EgressInfo, error)
}
