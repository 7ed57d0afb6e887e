package room

import (
	"context"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apierr"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
)

// deleteAction is the action the decision table prescribes for one delete
// request; Delete executes it against storage/media.
type deleteAction int

const (
	actionDelete       deleteAction = iota // delete room (+ recordings if present), end any meeting
	actionDeleteWithRecordings              // same as actionDelete, explicit about recordings
	actionClose                             // set status=closed, kick any meeting, keep room+recordings
	actionDeferDelete                       // meetingEndAction=delete
	actionDeferClose                        // meetingEndAction=close
	actionReject                            // 409, no mutation
)

// decision is the pure (status, code, action) triple the table in spec
// §4.8 maps a (hasActiveMeeting, hasRecordings, withMeeting, withRecordings)
// tuple to.
type decision struct {
	httpStatus int
	code       string
	action     deleteAction
}

// decide reproduces the 14-row table in spec §4.8 exactly.
func decide(hasActive, hasRecs bool, withMeeting, withRecordings string) decision {
	if !hasActive && !hasRecs {
		return decision{200, "ROOM_DELETED", actionDelete}
	}
	if !hasActive && hasRecs {
		switch withRecordings {
		case WithRecordingsForce:
			return decision{200, "ROOM_AND_RECORDINGS_DELETED", actionDeleteWithRecordings}
		case WithRecordingsClose:
			return decision{200, "ROOM_CLOSED", actionClose}
		default: // fail
			return decision{409, "ROOM_HAS_RECORDINGS", actionReject}
		}
	}
	if hasActive && !hasRecs {
		switch withMeeting {
		case WithMeetingForce:
			return decision{200, "ROOM_WITH_ACTIVE_MEETING_DELETED", actionDelete}
		case WithMeetingWhenMeetingEnds:
			return decision{202, "ROOM_SCHEDULED_TO_BE_DELETED", actionDeferDelete}
		default: // fail
			return decision{409, "ROOM_HAS_ACTIVE_MEETING", actionReject}
		}
	}
	// hasActive && hasRecs
	switch withMeeting {
	case WithMeetingForce:
		switch withRecordings {
		case WithRecordingsForce:
			return decision{200, "ROOM_AND_RECORDINGS_DELETED", actionDeleteWithRecordings}
		case WithRecordingsClose:
			return decision{200, "ROOM_CLOSED", actionClose}
		default: // fail
			return decision{409, "ROOM_HAS_RECORDINGS", actionReject}
		}
	case WithMeetingWhenMeetingEnds:
		switch withRecordings {
		case WithRecordingsForce:
			return decision{202, "ROOM_AND_RECORDINGS_SCHEDULED_TO_BE_DELETED", actionDeferDelete}
		case WithRecordingsClose:
			return decision{202, "ROOM_SCHEDULED_TO_BE_CLOSED", actionDeferClose}
		default: // fail
			return decision{409, "ROOM_HAS_RECORDINGS_CANNOT_SCHEDULE_DELETION", actionReject}
		}
	default: // fail
		return decision{409, "ROOM_WITH_RECORDINGS_HAS_ACTIVE_MEETING", actionReject}
	}
}

// DeleteResult is the (status, code, room) triple the HTTP layer renders.
type DeleteResult struct {
	HTTPStatus int
	Code       string
	Room       *storage.Room
}

// Delete applies the deletion policy engine to a room (spec §4.8). withMeeting
// and withRecordings default to "fail" when empty, the safe default per
// DESIGN.md's Open Question decision.
func (s *Service) Delete(ctx context.Context, roomID, withMeeting, withRecordings string) (DeleteResult, error) {
	if withMeeting == "" {
		withMeeting = WithMeetingFail
	}
	if withRecordings == "" {
		withRecordings = WithRecordingsFail
	}

	r, err := s.GetByID(ctx, roomID)
	if err != nil {
		return DeleteResult{}, err
	}

	hasRecs, err := s.roomHasRecordings(ctx, roomID)
	if err != nil {
		return DeleteResult{}, err
	}
	hasActive := r.Status == StatusActiveMeeting

	d := decide(hasActive, hasRecs, withMeeting, withRecordings)

	switch d.action {
	case actionReject:
		return DeleteResult{}, apierr.Conflictf(d.code, "room %q: %s", roomID, d.code)

	case actionDelete, actionDeleteWithRecordings:
		if hasActive {
			if err := s.endMeeting(ctx, roomID); err != nil {
				return DeleteResult{}, err
			}
		}
		if d.action == actionDeleteWithRecordings {
			if err := s.deleteAllRecordings(ctx, roomID); err != nil {
				return DeleteResult{}, err
			}
		}
		if err := s.deleteRoomAndMembers(ctx, roomID); err != nil {
			return DeleteResult{}, err
		}
		return DeleteResult{HTTPStatus: d.httpStatus, Code: d.code}, nil

	case actionClose:
		if hasActive {
			if err := s.endMeeting(ctx, roomID); err != nil {
				return DeleteResult{}, err
			}
		}
		r.Status = StatusClosed
		r.MeetingEndAction = ""
		if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
			return DeleteResult{}, err
		}
		return DeleteResult{HTTPStatus: d.httpStatus, Code: d.code, Room: r}, nil

	case actionDeferDelete:
		r.MeetingEndAction = MeetingEndActionDelete
		if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
			return DeleteResult{}, err
		}
		return DeleteResult{HTTPStatus: d.httpStatus, Code: d.code, Room: r}, nil

	case actionDeferClose:
		r.MeetingEndAction = MeetingEndActionClose
		if err := s.store.Rooms.Put(ctx, s.store.Keys().Room(roomID), r); err != nil {
			return DeleteResult{}, err
		}
		return DeleteResult{HTTPStatus: d.httpStatus, Code: d.code, Room: r}, nil
	}

	return DeleteResult{}, apierr.Wrap(apierr.Internal, "ROOM_DELETE_UNREACHABLE", "unreachable deletion decision", nil)
}

// BulkDelete applies Delete to each (deduplicated, sanitised) room id,
// aggregating into {successful[], failed[]} (spec §4.8).
func (s *Service) BulkDelete(ctx context.Context, roomIDs []string, withMeeting, withRecordings string) BulkDeleteResult {
	seen := make(map[string]bool, len(roomIDs))
	result := BulkDeleteResult{}
	for _, id := range roomIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		res, err := s.Delete(ctx, id, withMeeting, withRecordings)
		if err != nil {
			apiErr, ok := apierr.As(err)
			code, msg := "INTERNAL", err.Error()
			if ok {
				code, msg = apiErr.Code, apiErr.Message
			}
			result.Failed = append(result.Failed, BulkDeleteFailure{RoomID: id, Code: code, Message: msg})
			continue
		}
		if res.HTTPStatus >= 400 {
			result.Failed = append(result.Failed, BulkDeleteFailure{RoomID: id, Code: res.Code})
			continue
		}
		result.Successful = append(result.Successful, id)
	}
	return result
}

func (s *Service) roomHasRecordings(ctx context.Context, roomID string) (bool, error) {
	page, err := s.store.ObjectStore().List(ctx, s.store.Keys().RecordingMetaRoomPrefix(roomID), 1, "")
	if err != nil {
		return false, err
	}
	return len(page.Keys) > 0, nil
}

func (s *Service) deleteAllRecordings(ctx context.Context, roomID string) error {
	cursor := ""
	for {
		page, err := s.store.ObjectStore().List(ctx, s.store.Keys().RecordingMetaRoomPrefix(roomID), 100, cursor)
		if err != nil {
			return err
		}
		for _, key := range page.Keys {
			if err := s.store.Recordings.Delete(ctx, key); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return s.store.ObjectStore().DeleteMediaDir(roomID)
}

func (s *Service) deleteRoomAndMembers(ctx context.Context, roomID string) error {
	cursor := ""
	for {
		page, err := s.store.ObjectStore().List(ctx, s.store.Keys().MemberPrefix(roomID), 100, cursor)
		if err != nil {
			return err
		}
		for _, key := range page.Keys {
			if err := s.store.Members.Delete(ctx, key); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return s.store.Rooms.Delete(ctx, s.store.Keys().Room(roomID))
}

// endMeeting force-ends a room's live meeting on the media server. Missing
// rooms on the media server are treated as already-ended.
func (s *Service) endMeeting(ctx context.Context, roomID string) error {
	err := s.media.DeleteRoom(ctx, roomID)
	if err == nil {
		return nil
	}
	if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.NotFound {
		return nil
	}
	return err
}
