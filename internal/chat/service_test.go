package chat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vitalink-health/telehealth/internal/chat"
	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/models"
	"github.com/vitalink-health/telehealth/internal/session"
	"github.com/vitalink-health/telehealth/internal/storetest"
)

type fixture struct {
	clk          *storetest.Clock
	meetings     *storetest.MeetingStore
	participants *storetest.ParticipantStore
	messages     *storetest.ChatStore
	sink         *storetest.SinkRecorder
	svc          *chat.Service
}

func newFixture() *fixture {
	clk := storetest.NewClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	meetings := storetest.NewMeetingStore()
	meetings.Now = clk.Now
	participants := storetest.NewParticipantStore(meetings)
	messages := storetest.NewChatStore(participants)
	sink := &storetest.SinkRecorder{}
	svc := chat.NewService(messages, participants, meetings, sink, 0, clk.Now, nil)
	return &fixture{clk: clk, meetings: meetings, participants: participants, messages: messages, sink: sink, svc: svc}
}

func (f *fixture) openMeeting(t *testing.T) *models.Meeting {
	t.Helper()
	m, err := f.meetings.Create(context.Background(), uuid.New(), strings.Repeat("a", 64), f.clk.Now().Add(24*time.Hour))
	require.NoError(t, err)
	return m
}

func (f *fixture) admit(t *testing.T, meetingID uuid.UUID, name string) *models.Participant {
	t.Helper()
	p := &models.Participant{
		MeetingID:       meetingID,
		DisplayName:     name,
		SourceIP:        "10.0.0.1",
		JoinedAt:        f.clk.Now(),
		LastHeartbeatAt: f.clk.Now(),
	}
	require.NoError(t, f.participants.Create(context.Background(), p))
	return p
}

func TestSend_Persists_And_Reports_Length(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	ctx := context.Background()
	m := f.openMeeting(t)
	alice := f.admit(t, m.ID, "Alice")

	id, err := f.svc.Send(ctx, m.ID, alice.ID, "  How are you feeling today?  ")
	req.NoError(err)
	req.NotEqual(uuid.Nil, id)

	history, err := f.svc.History(ctx, m.ID, alice.ID)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("How are you feeling today?", history[0].Text)
	req.Equal("Alice", history[0].DisplayName)
	req.Equal(f.clk.Now(), history[0].SentAt)

	sent := f.sink.OfType(events.TypeChatMessageSent)
	req.Len(sent, 1)
	// Events carry the length, never the content.
	req.Equal(len("How are you feeling today?"), sent[0].MessageLength)
}

func TestSend_Enforces_The_Length_Limit_In_Runes(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	ctx := context.Background()
	m := f.openMeeting(t)
	alice := f.admit(t, m.ID, "Alice")

	// 2000 multibyte runes pass even though the byte count is far higher.
	_, err := f.svc.Send(ctx, m.ID, alice.ID, strings.Repeat("é", 2000))
	req.NoError(err)

	_, err = f.svc.Send(ctx, m.ID, alice.ID, strings.Repeat("é", 2001))
	req.Error(err)
	req.Equal(session.KindValidation, session.KindOf(err))

	_, err = f.svc.Send(ctx, m.ID, alice.ID, "   ")
	req.Error(err)
	req.Equal(session.KindValidation, session.KindOf(err))

	req.Len(f.sink.OfType(events.TypeChatMessageSent), 1)
}

func TestSend_Gates_On_Sender_And_Meeting_State(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	ctx := context.Background()
	m := f.openMeeting(t)
	alice := f.admit(t, m.ID, "Alice")

	// Unknown sender and mismatched meeting are indistinguishable.
	_, err := f.svc.Send(ctx, m.ID, uuid.New(), "hi")
	req.Equal(session.KindNotFound, session.KindOf(err))
	_, err = f.svc.Send(ctx, uuid.New(), alice.ID, "hi")
	req.Equal(session.KindNotFound, session.KindOf(err))

	// A stale sender is still a member but may not write.
	f.clk.Advance(31 * time.Second)
	_, err = f.svc.Send(ctx, m.ID, alice.ID, "hi")
	req.Equal(session.KindForbidden, session.KindOf(err))

	refreshed, err := f.participants.RecordHeartbeat(ctx, alice.ID, f.clk.Now())
	req.NoError(err)
	req.True(refreshed)
	_, err = f.svc.Send(ctx, m.ID, alice.ID, "hi")
	req.NoError(err)

	// A departed sender is gone, whatever the meeting state.
	left, err := f.participants.Leave(ctx, alice.ID, f.clk.Now())
	req.NoError(err)
	req.True(left)
	_, err = f.svc.Send(ctx, m.ID, alice.ID, "hi")
	req.Equal(session.KindGone, session.KindOf(err))

	// An ended meeting refuses writes from members that remain.
	bob := f.admit(t, m.ID, "Bob")
	ended, err := f.meetings.End(ctx, m.ID, f.clk.Now())
	req.NoError(err)
	req.True(ended)
	_, err = f.svc.Send(ctx, m.ID, bob.ID, "hi")
	req.Equal(session.KindForbidden, session.KindOf(err))
}

func TestSend_Escapes_Markup(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	ctx := context.Background()
	m := f.openMeeting(t)
	alice := f.admit(t, m.ID, "Alice")

	_, err := f.svc.Send(ctx, m.ID, alice.ID, "<script>alert(1)</script>see you at 5 & after")
	req.NoError(err)

	history, err := f.svc.History(ctx, m.ID, alice.ID)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal("alert(1)see you at 5 &amp; after", history[0].Text)
}

func TestHistory_Is_Readable_By_Any_Member_And_Outlives_The_Meeting(t *testing.T) {
	req := require.New(t)
	f := newFixture()
	ctx := context.Background()
	m := f.openMeeting(t)
	alice := f.admit(t, m.ID, "Alice")
	bob := f.admit(t, m.ID, "Bob")

	_, err := f.svc.Send(ctx, m.ID, alice.ID, "first")
	req.NoError(err)
	f.clk.Advance(time.Second)
	_, err = f.svc.Send(ctx, m.ID, bob.ID, "second")
	req.NoError(err)

	// Outsiders may not read the log.
	_, err = f.svc.History(ctx, m.ID, uuid.New())
	req.Equal(session.KindForbidden, session.KindOf(err))

	// A member who left and an ended meeting still serve the full log.
	left, err := f.participants.Leave(ctx, alice.ID, f.clk.Now())
	req.NoError(err)
	req.True(left)
	ended, err := f.meetings.End(ctx, m.ID, f.clk.Now())
	req.NoError(err)
	req.True(ended)

	history, err := f.svc.History(ctx, m.ID, alice.ID)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("first", history[0].Text)
	req.Equal("Alice", history[0].DisplayName)
	req.Equal("second", history[1].Text)
	req.Equal("Bob", history[1].DisplayName)
	req.True(history[0].SentAt.Before(history[1].SentAt))
}
