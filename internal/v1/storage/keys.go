package storage

import "fmt"

// Keys builds the fixed persisted-layout key paths (spec §6): rooms under
// rooms/{roomId}; members under rooms/{roomId}/members/{memberId};
// recording metadata under recordings/.metadata/{roomId}/{egressId}/{uid}.json;
// global config under .config/global.json.
type Keys struct{}

func (Keys) Room(roomID string) string {
	return fmt.Sprintf("rooms/%s", roomID)
}

func (Keys) RoomPrefix() string {
	return "rooms/"
}

func (Keys) Member(roomID, memberID string) string {
	return fmt.Sprintf("rooms/%s/members/%s", roomID, memberID)
}

func (Keys) MemberPrefix(roomID string) string {
	return fmt.Sprintf("rooms/%s/members/", roomID)
}

func (Keys) RecordingMeta(roomID, egressID, uid string) string {
	return fmt.Sprintf("recordings/.metadata/%s/%s/%s.json", roomID, egressID, uid)
}

func (Keys) RecordingMetaRoomPrefix(roomID string) string {
	return fmt.Sprintf("recordings/.metadata/%s/", roomID)
}

func (Keys) RecordingMetaPrefix() string {
	return "recordings/.metadata/"
}

func (Keys) User(userID string) string {
	return fmt.Sprintf("users/%s", userID)
}

func (Keys) UserPrefix() string {
	return "users/"
}

func (Keys) ApiKey(keyID string) string {
	return fmt.Sprintf("apikeys/%s", keyID)
}

func (Keys) ApiKeyPrefix() string {
	return "apikeys/"
}

func (Keys) GlobalConfig() string {
	return ".config/global.json"
}
