package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRoomIDPrefix(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"simple lowercase", "standup", "standup"},
		{"uppercase folds", "Team Standup", "team_standup"},
		{"hyphens become underscore", "weekly-sync", "weekly_sync"},
		{"collapses repeats", "too   many---spaces", "too_many_spaces"},
		{"trims leading/trailing", "__trim__", "trim"},
		{"strips punctuation", "q3!review?", "q3review"},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, sanitizeRoomIDPrefix(tt.input))
		})
	}
}

func TestGenerateRoomID_Shape(t *testing.T) {
	id := generateRoomID("Team Standup", 8)
	assert.Regexp(t, `^team_standup-[a-z0-9]{8}$`, id)
}

func TestGenerateRoomID_EmptyPrefixFallsBack(t *testing.T) {
	id := generateRoomID("!!!", 6)
	assert.Regexp(t, `^room-[a-z0-9]{6}$`, id)
}

func TestGenerateRoomID_Uniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := generateRoomID("room", 8)
		assert.False(t, seen[id], "generated duplicate room id %q", id)
		seen[id] = true
	}
}

func TestGenerateSecret_NonEmptyAndUnique(t *testing.T) {
	a := GenerateSecret()
	b := GenerateSecret()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
