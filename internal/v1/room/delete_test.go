package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDecide_FullTable reproduces every row of the deletion decision table
// (spec §4.8) and asserts the exact (status, code) pair.
func TestDecide_FullTable(t *testing.T) {
	tests := []struct {
		name           string
		hasActive      bool
		hasRecs        bool
		withMeeting    string
		withRecordings string
		wantStatus     int
		wantCode       string
	}{
		{"no active, no recs, any/any", false, false, WithMeetingFail, WithRecordingsFail, 200, "ROOM_DELETED"},
		{"no active, recs, withR=force", false, true, WithMeetingFail, WithRecordingsForce, 200, "ROOM_AND_RECORDINGS_DELETED"},
		{"no active, recs, withR=close", false, true, WithMeetingFail, WithRecordingsClose, 200, "ROOM_CLOSED"},
		{"no active, recs, withR=fail", false, true, WithMeetingFail, WithRecordingsFail, 409, "ROOM_HAS_RECORDINGS"},
		{"active, no recs, withM=force", true, false, WithMeetingForce, WithRecordingsFail, 200, "ROOM_WITH_ACTIVE_MEETING_DELETED"},
		{"active, no recs, withM=when_meeting_ends", true, false, WithMeetingWhenMeetingEnds, WithRecordingsFail, 202, "ROOM_SCHEDULED_TO_BE_DELETED"},
		{"active, no recs, withM=fail", true, false, WithMeetingFail, WithRecordingsFail, 409, "ROOM_HAS_ACTIVE_MEETING"},
		{"active, recs, force/force", true, true, WithMeetingForce, WithRecordingsForce, 200, "ROOM_AND_RECORDINGS_DELETED"},
		{"active, recs, force/close", true, true, WithMeetingForce, WithRecordingsClose, 200, "ROOM_CLOSED"},
		{"active, recs, force/fail", true, true, WithMeetingForce, WithRecordingsFail, 409, "ROOM_HAS_RECORDINGS"},
		{"active, recs, when_meeting_ends/force", true, true, WithMeetingWhenMeetingEnds, WithRecordingsForce, 202, "ROOM_AND_RECORDINGS_SCHEDULED_TO_BE_DELETED"},
		{"active, recs, when_meeting_ends/close", true, true, WithMeetingWhenMeetingEnds, WithRecordingsClose, 202, "ROOM_SCHEDULED_TO_BE_CLOSED"},
		{"active, recs, when_meeting_ends/fail", true, true, WithMeetingWhenMeetingEnds, WithRecordingsFail, 409, "ROOM_HAS_RECORDINGS_CANNOT_SCHEDULE_DELETION"},
		{"active, recs, fail/any", true, true, WithMeetingFail, WithRecordingsFail, 409, "ROOM_WITH_RECORDINGS_HAS_ACTIVE_MEETING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decide(tt.hasActive, tt.hasRecs, tt.withMeeting, tt.withRecordings)
			assert.Equal(t, tt.wantStatus, d.httpStatus)
			assert.Equal(t, tt.wantCode, d.code)
		})
	}
}

func TestParseAutoDeletionPolicy(t *testing.T) {
	wm, wr := parseAutoDeletionPolicy("withMeeting=force,withRecordings=close")
	assert.Equal(t, WithMeetingForce, wm)
	assert.Equal(t, WithRecordingsClose, wr)

	wm, wr = parseAutoDeletionPolicy("")
	assert.Equal(t, WithMeetingFail, wm)
	assert.Equal(t, WithRecordingsFail, wr)
}
