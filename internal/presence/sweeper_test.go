package presence_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/presence"
)

func TestSweep_Evicts_Across_Open_Meetings_Only(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	ctx := context.Background()
	sweeper := presence.NewSweeper(f.participants, f.sink, 0, 0, f.clk.Now, nil)

	open := f.openMeeting(t, strings.Repeat("a", 64))
	closed := f.openMeeting(t, strings.Repeat("b", 64))
	alice := f.admit(t, open.ID, "Alice")
	bob := f.admit(t, closed.ID, "Bob")
	ended, err := f.meetings.End(ctx, closed.ID, f.clk.Now())
	req.NoError(err)
	req.True(ended)

	f.clk.Advance(31 * time.Second)
	count := sweeper.Sweep(ctx)

	req.Equal(1, count)
	aliceRow, err := f.participants.GetByID(ctx, alice.ID)
	req.NoError(err)
	req.NotNil(aliceRow.LeftAt)

	// Rows in ended meetings are historical record; the sweeper leaves them.
	bobRow, err := f.participants.GetByID(ctx, bob.ID)
	req.NoError(err)
	req.Nil(bobRow.LeftAt)

	evs := f.sink.OfType(events.TypeParticipantLeft)
	req.Len(evs, 1)
	req.Equal(events.ReasonEvicted, evs[0].Reason)
	req.Equal(open.ID, *evs[0].MeetingID)
	req.Equal(alice.ID, *evs[0].ParticipantID)
}

func TestSweep_Leaves_Fresh_Participants_Alone(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	sweeper := presence.NewSweeper(f.participants, f.sink, 0, 0, f.clk.Now, nil)

	m := f.openMeeting(t, strings.Repeat("a", 64))
	f.admit(t, m.ID, "Alice")
	f.clk.Advance(29 * time.Second)

	req.Zero(sweeper.Sweep(context.Background()))
	req.Empty(f.sink.OfType(events.TypeParticipantLeft))
}
