// Package permission implements the Permission Engine: a pure, I/O-free
// overlay of per-member overrides on a room's role template (spec §4.7).
package permission

// Set is the fixed bundle of permissions a role template or member override
// can carry. Fields are pointers so "undefined" (inherit from template) is
// distinguishable from an explicit false.
type Set struct {
	CanRecord                  *bool `json:"canRecord,omitempty"`
	CanRetrieveRecordings      *bool `json:"canRetrieveRecordings,omitempty"`
	CanDeleteRecordings        *bool `json:"canDeleteRecordings,omitempty"`
	CanChat                    *bool `json:"canChat,omitempty"`
	CanChangeVirtualBackground *bool `json:"canChangeVirtualBackground,omitempty"`
	CanMakeModerator           *bool `json:"canMakeModerator,omitempty"`
}

// Effective is the frozen, fully-resolved snapshot returned to callers; every
// field is concrete (no inheritance left unresolved).
type Effective struct {
	CanRecord                  bool `json:"canRecord"`
	CanRetrieveRecordings      bool `json:"canRetrieveRecordings"`
	CanDeleteRecordings        bool `json:"canDeleteRecordings"`
	CanChat                    bool `json:"canChat"`
	CanChangeVirtualBackground bool `json:"canChangeVirtualBackground"`
	CanMakeModerator           bool `json:"canMakeModerator"`
}

// Key identifies one of the fixed permission bits, used to gate field
// visibility when serialising a room for a requester (spec §4.7).
type Key string

const (
	KeyCanRecord                  Key = "canRecord"
	KeyCanRetrieveRecordings      Key = "canRetrieveRecordings"
	KeyCanDeleteRecordings        Key = "canDeleteRecordings"
	KeyCanChat                    Key = "canChat"
	KeyCanChangeVirtualBackground Key = "canChangeVirtualBackground"
	KeyCanMakeModerator           Key = "canMakeModerator"
)

// Resolve overlays overrides on top of template key-by-key; an unset
// (nil) key in overrides inherits the template's value. The engine performs
// no I/O — template and overrides must already be loaded by the caller.
func Resolve(template Set, overrides *Set) Effective {
	eff := Effective{
		CanRecord:                  derefOr(template.CanRecord, false),
		CanRetrieveRecordings:      derefOr(template.CanRetrieveRecordings, false),
		CanDeleteRecordings:        derefOr(template.CanDeleteRecordings, false),
		CanChat:                    derefOr(template.CanChat, false),
		CanChangeVirtualBackground: derefOr(template.CanChangeVirtualBackground, false),
		CanMakeModerator:           derefOr(template.CanMakeModerator, false),
	}
	if overrides == nil {
		return eff
	}
	if overrides.CanRecord != nil {
		eff.CanRecord = *overrides.CanRecord
	}
	if overrides.CanRetrieveRecordings != nil {
		eff.CanRetrieveRecordings = *overrides.CanRetrieveRecordings
	}
	if overrides.CanDeleteRecordings != nil {
		eff.CanDeleteRecordings = *overrides.CanDeleteRecordings
	}
	if overrides.CanChat != nil {
		eff.CanChat = *overrides.CanChat
	}
	if overrides.CanChangeVirtualBackground != nil {
		eff.CanChangeVirtualBackground = *overrides.CanChangeVirtualBackground
	}
	if overrides.CanMakeModerator != nil {
		eff.CanMakeModerator = *overrides.CanMakeModerator
	}
	return eff
}

func derefOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// ToMap renders an Effective snapshot as the generic map the Token Service
// embeds in room-member claims.
func (e Effective) ToMap() map[string]any {
	return map[string]any{
		"canRecord":                  e.CanRecord,
		"canRetrieveRecordings":      e.CanRetrieveRecordings,
		"canDeleteRecordings":        e.CanDeleteRecordings,
		"canChat":                    e.CanChat,
		"canChangeVirtualBackground": e.CanChangeVirtualBackground,
		"canMakeModerator":           e.CanMakeModerator,
	}
}

// Has reports whether the effective set grants the given permission key.
func (e Effective) Has(key Key) bool {
	switch key {
	case KeyCanRecord:
		return e.CanRecord
	case KeyCanRetrieveRecordings:
		return e.CanRetrieveRecordings
	case KeyCanDeleteRecordings:
		return e.CanDeleteRecordings
	case KeyCanChat:
		return e.CanChat
	case KeyCanChangeVirtualBackground:
		return e.CanChangeVirtualBackground
	case KeyCanMakeModerator:
		return e.CanMakeModerator
	default:
		return false
	}
}

// FieldGate maps a sensitive room-serialisation field name to the
// permission key that gates its visibility (spec §4.7: "sensitive room
// fields are partitioned by the permission that grants their visibility").
var FieldGate = map[string]Key{
	"recordingSettings": KeyCanRecord,
	"recordings":        KeyCanRetrieveRecordings,
	"moderatorControls": KeyCanMakeModerator,
	"virtualBackground":  KeyCanChangeVirtualBackground,
}

// StripFields removes, from a generic room representation, every top-level
// field whose gating permission the effective set does not grant. fields is
// mutated in place and returned for convenience.
func StripFields(fields map[string]any, eff Effective) map[string]any {
	for field, key := range FieldGate {
		if !eff.Has(key) {
			delete(fields, field)
		}
	}
	return fields
}
