package room

import (
	"encoding/json"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/permission"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// ToPermissionSet converts a role template's/member's generic permission map
// into the Permission Engine's typed overlay representation. Unknown keys
// are ignored; absent keys remain nil (inherit). Exported for the member
// package, which resolves a member's effectivePermissions against the same
// room role templates (spec §4.7, §4.10).
func ToPermissionSet(m map[string]any) permission.Set {
	if m == nil {
		return permission.Set{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return permission.Set{}
	}
	var set permission.Set
	_ = json.Unmarshal(raw, &set)
	return set
}

// ResolveEffectivePermissions overlays a member's custom overrides on the
// room's role template for baseRole (spec §4.7). Shared by the Room Service
// (for the room-level default view) and the Member Service (recomputed on
// every member create/update, spec §4.10).
func ResolveEffectivePermissions(roles map[string]storage.RoleTemplate, baseRole string, customOverrides map[string]any) permission.Effective {
	template := ToPermissionSet(roles[baseRole].Permissions)
	var overrides *permission.Set
	if customOverrides != nil {
		s := ToPermissionSet(customOverrides)
		overrides = &s
	}
	return permission.Resolve(template, overrides)
}
