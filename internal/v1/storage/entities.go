// Package storage implements the Storage Layer: typed repositories over a
// write-through Redis cache backed by an authoritative embedded object
// store (spec §4.5).
package storage

import "time"

// Room is the persisted room record (spec §3).
type Room struct {
	RoomID               string                     `json:"roomId"`
	RoomName             string                     `json:"roomName"`
	CreatedAt            time.Time                  `json:"createdAt"`
	AutoDeletionDate     *time.Time                 `json:"autoDeletionDate,omitempty"`
	AutoDeletionPolicy   string                     `json:"autoDeletionPolicy,omitempty"`
	Config               RoomConfig                 `json:"config"`
	Roles                map[string]RoleTemplate    `json:"roles"`
	Anonymous            map[string]AnonymousAccess `json:"anonymous,omitempty"`
	Status               string                     `json:"status"`
	MeetingEndAction     string                     `json:"meetingEndAction,omitempty"`
	PermissionsUpdatedAt int64                      `json:"permissionsUpdatedAt"`
}

// RoomConfig bundles the per-room feature toggles.
type RoomConfig struct {
	ChatEnabled              bool `json:"chatEnabled"`
	RecordingEnabled         bool `json:"recordingEnabled"`
	VirtualBackgroundEnabled bool `json:"virtualBackgroundEnabled"`
}

// RoleTemplate is a role's permission template plus display metadata.
type RoleTemplate struct {
	Role        string         `json:"role"`
	Permissions map[string]any `json:"permissions"`
}

// AnonymousAccess is a per-role anonymous-join entry.
type AnonymousAccess struct {
	Enabled   bool   `json:"enabled"`
	Secret    string `json:"secret"`
	AccessURL string `json:"accessUrl"`
	Role      string `json:"role"`
}

// RoomMember is the persisted member record (spec §3).
type RoomMember struct {
	MemberID                   string         `json:"memberId"`
	RoomID                     string         `json:"roomId"`
	Name                       string         `json:"name"`
	BaseRole                   string         `json:"baseRole"`
	CustomPermissions          map[string]any `json:"customPermissions,omitempty"`
	EffectivePermissions       map[string]any `json:"effectivePermissions"`
	PermissionsUpdatedAt       int64          `json:"permissionsUpdatedAt"`
	CurrentParticipantIdentity string         `json:"currentParticipantIdentity,omitempty"`
}

// User is a local account (spec §3).
type User struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName"`
	PasswordHash       string `json:"passwordHash"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

// Recording is the persisted recording metadata record (spec §3).
type Recording struct {
	RecordingID string     `json:"recordingId"`
	RoomID      string     `json:"roomId"`
	EgressID    string     `json:"egressId"`
	Status      string     `json:"status"`
	SizeBytes   int64      `json:"sizeBytes"`
	DurationMs  int64      `json:"durationMs"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	StoragePath string     `json:"storagePath"`
	Encoding    string     `json:"encoding"`
}

// ApiKey is an opaque management credential (spec §3).
type ApiKey struct {
	KeyID     string    `json:"keyId"`
	Prefix    string    `json:"prefix"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"createdAt"`
	Active    bool      `json:"active"`
}

// GlobalConfig holds process-wide defaults seeded at storage init.
type GlobalConfig struct {
	DefaultRoles map[string]RoleTemplate `json:"defaultRoles"`
	BaseURL      string                  `json:"baseUrl"`
	SeededAt     time.Time               `json:"seededAt"`
}
