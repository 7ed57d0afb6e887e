package room

import (
	"encoding/json"
	"fmt"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/permission"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// ToMap renders a Room as the generic map the HTTP layer filters/strips
// before responding (spec §4.8 field filtering, §4.7 permission gating).
func ToMap(r *storage.Room) map[string]any {
	raw, _ := json.Marshal(r)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

// expandableStub is returned in place of a collapsed subtree (spec §4.8).
func expandableStub(roomID, field string) map[string]any {
	return map[string]any{
		"_expandable": true,
		"_href":       fmt.Sprintf("/api/v1/rooms/%s?expand=%s", roomID, field),
	}
}

// collapsibleFields names the top-level fields that ship collapsed by
// default and can be inlined via ?expand=.
var collapsibleFields = []string{"config"}

// Present applies field selection, expansion and permission-based field
// stripping to a room, in that order: strip first (requester never sees a
// gated field regardless of selection), then select fields, then collapse
// or inline subtrees per expand.
func Present(r *storage.Room, eff permission.Effective, fields []string, expand map[string]bool) map[string]any {
	m := ToMap(r)
	permission.StripFields(m, eff)

	if len(fields) > 0 {
		selected := make(map[string]any, len(fields))
		for _, f := range fields {
			if v, ok := m[f]; ok {
				selected[f] = v
			}
		}
		m = selected
	}

	for _, field := range collapsibleFields {
		if _, ok := m[field]; !ok {
			continue
		}
		if !expand[field] {
			m[field] = expandableStub(r.RoomID, field)
		}
	}

	return m
}
