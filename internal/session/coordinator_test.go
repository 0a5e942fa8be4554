package session_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vitalink-health/telehealth/internal/events"
	"github.com/vitalink-health/telehealth/internal/presence"
	"github.com/vitalink-health/telehealth/internal/session"
	"github.com/vitalink-health/telehealth/internal/storetest"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

type fixture struct {
	clk          *storetest.Clock
	meetings     *storetest.MeetingStore
	participants *storetest.ParticipantStore
	sink         *storetest.SinkRecorder
	coord        *session.Coordinator
}

func newFixture(authz session.Authorizer) *fixture {
	clk := storetest.NewClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	meetings := storetest.NewMeetingStore()
	meetings.Now = clk.Now
	participants := storetest.NewParticipantStore(meetings)
	sink := &storetest.SinkRecorder{}
	coord := session.NewCoordinator(meetings, participants, sink, authz, "https://care.example.com", 0, 0, clk.Now, nil)
	return &fixture{clk: clk, meetings: meetings, participants: participants, sink: sink, coord: coord}
}

func TestCreateMeeting_Issues_Token_And_Join_URL(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	owner := uuid.New()

	res, err := f.coord.CreateMeeting(context.Background(), owner)

	req.NoError(err)
	req.NotEqual(uuid.Nil, res.MeetingID)
	req.Regexp(hexToken, res.Token)
	req.Equal(f.clk.Now().Add(24*time.Hour), res.ExpiresAt)
	req.Equal("https://care.example.com/video/join?token="+res.Token, res.JoinURL)

	created := f.sink.OfType(events.TypeMeetingCreated)
	req.Len(created, 1)
	req.Equal(res.MeetingID, *created[0].MeetingID)
	req.Equal(owner, *created[0].ActorID)
}

func TestCreateMeeting_Requires_An_Owner(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)

	_, err := f.coord.CreateMeeting(context.Background(), uuid.Nil)

	req.Error(err)
	req.Equal(session.KindForbidden, session.KindOf(err))
}

func TestCreateMeeting_Retries_Lost_Insert_Races(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	// Two creates win the probe/insert race before this one lands.
	f.meetings.DuplicateNext = 2

	res, err := f.coord.CreateMeeting(context.Background(), uuid.New())

	req.NoError(err)
	req.Regexp(hexToken, res.Token)
}

func TestCreateMeeting_Gives_Up_After_Persistent_Collisions(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	f.meetings.DuplicateNext = 100

	_, err := f.coord.CreateMeeting(context.Background(), uuid.New())

	req.Error(err)
	req.Equal(session.KindExhaustedRetries, session.KindOf(err))
}

func TestCreateMeeting_Classifies_Store_Failures_As_Internal(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	f.meetings.Err = errors.New("connection refused")

	_, err := f.coord.CreateMeeting(context.Background(), uuid.New())

	req.Error(err)
	req.Equal(session.KindInternal, session.KindOf(err))
}

func TestCreateMeeting_Never_Reissues_A_Token(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	owner := uuid.New()

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		res, err := f.coord.CreateMeeting(ctx, owner)
		req.NoError(err)
		_, dup := seen[res.Token]
		req.False(dup, "token issued twice: %s", res.Token)
		seen[res.Token] = struct{}{}
	}
}

func TestValidateToken_Accepts_Noisy_But_Valid_Input(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	created, err := f.coord.CreateMeeting(ctx, uuid.New())
	req.NoError(err)

	// Whitespace and uppercase hex survive sanitization.
	res, err := f.coord.ValidateToken(ctx, "  "+strings.ToUpper(created.Token)+"  ")

	req.NoError(err)
	req.True(res.Valid)
	req.Equal(created.MeetingID, *res.MeetingID)
}

func TestValidateToken_Reports_Specific_Reasons(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()

	// Malformed input fails fast, before any lookup.
	res, err := f.coord.ValidateToken(ctx, "zz-not-a-token")
	req.NoError(err)
	req.False(res.Valid)
	req.Equal(session.ReasonInvalidFormat, res.Reason)
	req.Nil(res.MeetingID)

	// Well-formed but matching nothing.
	res, err = f.coord.ValidateToken(ctx, strings.Repeat("ab", 32))
	req.NoError(err)
	req.False(res.Valid)
	req.Equal(session.ReasonNotFound, res.Reason)

	// Ended meeting: the id is still surfaced for client messaging.
	owner := uuid.New()
	created, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	ended, err := f.coord.EndMeeting(ctx, created.MeetingID, owner)
	req.NoError(err)
	req.True(ended)
	res, err = f.coord.ValidateToken(ctx, created.Token)
	req.NoError(err)
	req.False(res.Valid)
	req.Equal(session.ReasonEnded, res.Reason)
	req.Equal(created.MeetingID, *res.MeetingID)

	// Ending is terminal: the reason stays ended even after the validity
	// window lapses.
	f.clk.Advance(25 * time.Hour)
	res, err = f.coord.ValidateToken(ctx, created.Token)
	req.NoError(err)
	req.False(res.Valid)
	req.Equal(session.ReasonEnded, res.Reason)
	req.Equal(created.MeetingID, *res.MeetingID)

	// Only a meeting nobody closed reports expiry.
	lapsed, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	f.clk.Advance(25 * time.Hour)
	res, err = f.coord.ValidateToken(ctx, lapsed.Token)
	req.NoError(err)
	req.False(res.Valid)
	req.Equal(session.ReasonExpired, res.Reason)
	req.Equal(lapsed.MeetingID, *res.MeetingID)

	failures := f.sink.OfType(events.TypeTokenValidationFailed)
	req.Len(failures, 5)
}

func TestJoinMeeting_Admits_Participants_And_Counts_Active(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	created, err := f.coord.CreateMeeting(ctx, uuid.New())
	req.NoError(err)

	alice, err := f.coord.JoinMeeting(ctx, created.Token, "  Alice  ", "203.0.113.7")
	req.NoError(err)
	req.Equal("Alice", alice.Participant.DisplayName)
	req.Equal(created.MeetingID, alice.Participant.MeetingID)
	req.Equal(f.clk.Now(), alice.Participant.JoinedAt)
	req.Equal(f.clk.Now(), alice.Participant.LastHeartbeatAt)
	req.Equal(1, alice.ParticipantCount)

	bob, err := f.coord.JoinMeeting(ctx, created.Token, "Bob", "198.51.100.9")
	req.NoError(err)
	req.Equal(2, bob.ParticipantCount)

	// The audit trail sees a masked address; the row keeps the raw one.
	joined := f.sink.OfType(events.TypeParticipantJoined)
	req.Len(joined, 2)
	req.Equal("203.0.113.x", joined[0].SourceIP)

	stored, err := f.participants.GetByID(ctx, alice.Participant.ID)
	req.NoError(err)
	req.Equal("203.0.113.7", stored.SourceIP)
}

func TestJoinMeeting_Sanitizes_Display_Names(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	created, err := f.coord.CreateMeeting(ctx, uuid.New())
	req.NoError(err)

	res, err := f.coord.JoinMeeting(ctx, created.Token, "<b>Dr. Chen</b>", "10.0.0.1")
	req.NoError(err)
	req.Equal("Dr. Chen", res.Participant.DisplayName)

	_, err = f.coord.JoinMeeting(ctx, created.Token, "<script></script>", "10.0.0.1")
	req.Error(err)
	req.Equal(session.KindValidation, session.KindOf(err))
}

func TestJoinMeeting_Propagates_Token_Refusals(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.coord.JoinMeeting(ctx, "short", "Alice", "10.0.0.1")
	req.Error(err)
	req.Equal(session.KindValidation, session.KindOf(err))

	_, err = f.coord.JoinMeeting(ctx, strings.Repeat("00", 32), "Alice", "10.0.0.1")
	req.Error(err)
	req.Equal(session.KindNotFound, session.KindOf(err))

	owner := uuid.New()
	first, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	f.clk.Advance(24*time.Hour + time.Second)
	_, err = f.coord.JoinMeeting(ctx, first.Token, "Alice", "10.0.0.1")
	req.Error(err)
	req.Equal(session.KindExpired, session.KindOf(err))

	second, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	ended, err := f.coord.EndMeeting(ctx, second.MeetingID, owner)
	req.NoError(err)
	req.True(ended)
	_, err = f.coord.JoinMeeting(ctx, second.Token, "Alice", "10.0.0.1")
	req.Error(err)
	req.Equal(session.KindEnded, session.KindOf(err))
}

func TestLeaveMeeting_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	created, err := f.coord.CreateMeeting(ctx, uuid.New())
	req.NoError(err)
	alice, err := f.coord.JoinMeeting(ctx, created.Token, "Alice", "10.0.0.1")
	req.NoError(err)

	ok, err := f.coord.LeaveMeeting(ctx, alice.Participant.ID, created.MeetingID)
	req.NoError(err)
	req.True(ok)
	stored, err := f.participants.GetByID(ctx, alice.Participant.ID)
	req.NoError(err)
	firstLeft := *stored.LeftAt

	// Leaving twice still succeeds, emits nothing new, and keeps the
	// first timestamp.
	f.clk.Advance(time.Minute)
	ok, err = f.coord.LeaveMeeting(ctx, alice.Participant.ID, created.MeetingID)
	req.NoError(err)
	req.True(ok)
	stored, err = f.participants.GetByID(ctx, alice.Participant.ID)
	req.NoError(err)
	req.Equal(firstLeft, *stored.LeftAt)

	left := f.sink.OfType(events.TypeParticipantLeft)
	req.Len(left, 1)
	req.Equal(events.ReasonLeft, left[0].Reason)
	req.Equal(alice.Participant.ID, *left[0].ParticipantID)
}

func TestLeaveMeeting_Refuses_Mismatches_Without_Detail(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	first, err := f.coord.CreateMeeting(ctx, uuid.New())
	req.NoError(err)
	second, err := f.coord.CreateMeeting(ctx, uuid.New())
	req.NoError(err)
	bob, err := f.coord.JoinMeeting(ctx, second.Token, "Bob", "10.0.0.2")
	req.NoError(err)

	// Unknown participant and wrong-meeting participant get the same answer.
	ok, err := f.coord.LeaveMeeting(ctx, uuid.New(), first.MeetingID)
	req.NoError(err)
	req.False(ok)

	ok, err = f.coord.LeaveMeeting(ctx, bob.Participant.ID, first.MeetingID)
	req.NoError(err)
	req.False(ok)

	// Bob is untouched by the refused attempt.
	stored, err := f.participants.GetByID(ctx, bob.Participant.ID)
	req.NoError(err)
	req.Nil(stored.LeftAt)
}

func TestEndMeeting_Enforces_Creator_Or_Admin(t *testing.T) {
	req := require.New(t)
	admin := uuid.New()
	f := newFixture(session.AuthorizerFunc(func(_ context.Context, callerID uuid.UUID) (bool, error) {
		return callerID == admin, nil
	}))
	ctx := context.Background()
	owner := uuid.New()
	created, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)

	// A stranger cannot end it, and cannot tell that it exists.
	ok, err := f.coord.EndMeeting(ctx, created.MeetingID, uuid.New())
	req.NoError(err)
	req.False(ok)
	req.Len(f.sink.OfType(events.TypeMeetingEndDenied), 1)

	// Nor can anyone end a meeting that does not exist.
	ok, err = f.coord.EndMeeting(ctx, uuid.New(), owner)
	req.NoError(err)
	req.False(ok)

	// The administrative capability may end meetings it does not own.
	ok, err = f.coord.EndMeeting(ctx, created.MeetingID, admin)
	req.NoError(err)
	req.True(ok)
	stored, err := f.meetings.GetByID(ctx, created.MeetingID)
	req.NoError(err)
	firstEnd := *stored.EndedAt

	// Ending again is a quiet success: no second event, first timestamp kept.
	f.clk.Advance(time.Minute)
	ok, err = f.coord.EndMeeting(ctx, created.MeetingID, owner)
	req.NoError(err)
	req.True(ok)
	stored, err = f.meetings.GetByID(ctx, created.MeetingID)
	req.NoError(err)
	req.Equal(firstEnd, *stored.EndedAt)
	req.Len(f.sink.OfType(events.TypeMeetingEnded), 1)
}

func TestEndMeeting_Does_Not_Mark_Participants_Left(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	owner := uuid.New()
	created, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	alice, err := f.coord.JoinMeeting(ctx, created.Token, "Alice", "10.0.0.1")
	req.NoError(err)

	ok, err := f.coord.EndMeeting(ctx, created.MeetingID, owner)
	req.NoError(err)
	req.True(ok)

	// The ended meeting is the terminal signal; rows stay as they were.
	stored, err := f.participants.GetByID(ctx, alice.Participant.ID)
	req.NoError(err)
	req.Nil(stored.LeftAt)
}

func TestGetMeeting_Classifies_Absence(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	created, err := f.coord.CreateMeeting(ctx, uuid.New())
	req.NoError(err)

	m, err := f.coord.GetMeeting(ctx, created.MeetingID)
	req.NoError(err)
	req.Equal(created.MeetingID, m.ID)

	_, err = f.coord.GetMeeting(ctx, uuid.New())
	req.Error(err)
	req.Equal(session.KindNotFound, session.KindOf(err))
}

func TestAuthorizeSocket_Requires_Token_And_Membership(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	owner := uuid.New()
	created, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	other, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	alice, err := f.coord.JoinMeeting(ctx, created.Token, "Alice", "10.0.0.1")
	req.NoError(err)
	bob, err := f.coord.JoinMeeting(ctx, other.Token, "Bob", "10.0.0.2")
	req.NoError(err)

	meetingID, err := f.coord.AuthorizeSocket(ctx, created.Token, alice.Participant.ID)
	req.NoError(err)
	req.Equal(created.MeetingID, meetingID)

	// A token that opens one meeting grants nothing on another's roster.
	_, err = f.coord.AuthorizeSocket(ctx, created.Token, bob.Participant.ID)
	req.Equal(session.KindNotFound, session.KindOf(err))

	_, err = f.coord.AuthorizeSocket(ctx, strings.Repeat("0", 64), alice.Participant.ID)
	req.Equal(session.KindNotFound, session.KindOf(err))

	ok, err := f.coord.LeaveMeeting(ctx, alice.Participant.ID, created.MeetingID)
	req.NoError(err)
	req.True(ok)
	_, err = f.coord.AuthorizeSocket(ctx, created.Token, alice.Participant.ID)
	req.Equal(session.KindGone, session.KindOf(err))

	ok, err = f.coord.EndMeeting(ctx, other.MeetingID, owner)
	req.NoError(err)
	req.True(ok)
	_, err = f.coord.AuthorizeSocket(ctx, other.Token, bob.Participant.ID)
	req.Equal(session.KindEnded, session.KindOf(err))
}

// TestMeeting_Lifecycle_End_To_End walks the whole flow: create, two joins,
// peer registration, silent disconnect detected through a peer's heartbeat,
// and the owner closing the meeting.
func TestMeeting_Lifecycle_End_To_End(t *testing.T) {
	req := require.New(t)
	f := newFixture(nil)
	ctx := context.Background()
	monitor := presence.NewMonitor(f.participants, f.meetings, f.sink, 0, f.clk.Now, nil)

	owner := uuid.New()
	created, err := f.coord.CreateMeeting(ctx, owner)
	req.NoError(err)
	req.Equal(f.clk.Now().Add(24*time.Hour), created.ExpiresAt)

	alice, err := f.coord.JoinMeeting(ctx, created.Token, "Alice", "203.0.113.7")
	req.NoError(err)
	peers, err := monitor.ActivePeers(ctx, created.MeetingID)
	req.NoError(err)
	req.Len(peers, 1)
	req.Equal(alice.Participant.ID, peers[0].ParticipantID)

	bob, err := f.coord.JoinMeeting(ctx, created.Token, "Bob", "203.0.113.8")
	req.NoError(err)
	peers, err = monitor.ActivePeers(ctx, created.MeetingID)
	req.NoError(err)
	req.Len(peers, 2)

	ok, err := monitor.RegisterPeer(ctx, created.MeetingID, alice.Participant.ID, "peer-123")
	req.NoError(err)
	req.True(ok)
	peers, err = monitor.ActivePeers(ctx, created.MeetingID)
	req.NoError(err)
	req.Equal(alice.Participant.ID, peers[0].ParticipantID)
	req.NotNil(peers[0].PeerSignalingID)
	req.Equal("peer-123", *peers[0].PeerSignalingID)

	// Alice drops without a word. Bob's next heartbeat evicts her.
	f.clk.Advance(35 * time.Second)
	active, err := monitor.Heartbeat(ctx, bob.Participant.ID)
	req.NoError(err)
	req.Len(active, 1)
	req.Equal(bob.Participant.ID, active[0].ParticipantID)

	evictions := f.sink.OfType(events.TypeParticipantLeft)
	req.Len(evictions, 1)
	req.Equal(events.ReasonEvicted, evictions[0].Reason)
	req.Equal(alice.Participant.ID, *evictions[0].ParticipantID)

	// The owner ends the meeting: the token stops admitting and heartbeats
	// report the end.
	ok, err = f.coord.EndMeeting(ctx, created.MeetingID, owner)
	req.NoError(err)
	req.True(ok)

	_, err = f.coord.JoinMeeting(ctx, created.Token, "Mallory", "203.0.113.9")
	req.Error(err)
	req.Equal(session.KindEnded, session.KindOf(err))

	_, err = monitor.Heartbeat(ctx, bob.Participant.ID)
	req.Error(err)
	req.Equal(session.KindEnded, session.KindOf(err))
}
