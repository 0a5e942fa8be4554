package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitalink-health/telehealth/internal/models"
)

// MeetingStore is an in-memory meeting store.
type MeetingStore struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*models.Meeting
	tokens map[string]uuid.UUID

	// Now stamps created_at, standing in for the database clock.
	Now func() time.Time
	// DuplicateNext forces the next n Create calls to report a token
	// collision, simulating a lost probe/insert race.
	DuplicateNext int
	// Err, when set, fails every call.
	Err error
}

// NewMeetingStore creates an empty meeting store.
func NewMeetingStore() *MeetingStore {
	return &MeetingStore{
		rows:   make(map[uuid.UUID]*models.Meeting),
		tokens: make(map[string]uuid.UUID),
		Now:    time.Now,
	}
}

// Create inserts a meeting, enforcing token uniqueness.
func (s *MeetingStore) Create(_ context.Context, createdBy uuid.UUID, token string, expiresAt time.Time) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.DuplicateNext > 0 {
		s.DuplicateNext--
		return nil, models.ErrDuplicateToken
	}
	if _, taken := s.tokens[token]; taken {
		return nil, models.ErrDuplicateToken
	}
	m := &models.Meeting{
		ID:             uuid.New(),
		CreatedBy:      createdBy,
		Token:          token,
		TokenExpiresAt: expiresAt,
		CreatedAt:      s.Now(),
	}
	s.rows[m.ID] = m
	s.tokens[token] = m.ID
	cp := *m
	return &cp, nil
}

// GetByID returns a copy of the meeting, or (nil, nil) when absent.
func (s *MeetingStore) GetByID(_ context.Context, id uuid.UUID) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	m, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// GetByToken returns a copy of the meeting owning token, or (nil, nil).
func (s *MeetingStore) GetByToken(_ context.Context, token string) (*models.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	id, ok := s.tokens[token]
	if !ok {
		return nil, nil
	}
	cp := *s.rows[id]
	return &cp, nil
}

// TokenExists reports whether token is taken.
func (s *MeetingStore) TokenExists(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	_, ok := s.tokens[token]
	return ok, nil
}

// End sets ended_at only if currently null.
func (s *MeetingStore) End(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	m, ok := s.rows[id]
	if !ok || m.EndedAt != nil {
		return false, nil
	}
	m.EndedAt = &at
	return true, nil
}

// ParticipantStore is an in-memory participant registry. It holds a
// reference to the meeting store so the sweep can skip ended meetings the
// way the SQL join does.
type ParticipantStore struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*models.Participant
	order    []uuid.UUID
	meetings *MeetingStore

	// Err, when set, fails every call.
	Err error
}

// NewParticipantStore creates an empty registry backed by meetings.
func NewParticipantStore(meetings *MeetingStore) *ParticipantStore {
	return &ParticipantStore{
		rows:     make(map[uuid.UUID]*models.Participant),
		meetings: meetings,
	}
}

// Create inserts a participant and fills its generated id.
func (s *ParticipantStore) Create(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	p.ID = uuid.New()
	cp := *p
	s.rows[p.ID] = &cp
	s.order = append(s.order, p.ID)
	return nil
}

// GetByID returns a copy of the participant, or (nil, nil) when absent.
func (s *ParticipantStore) GetByID(_ context.Context, id uuid.UUID) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// Leave sets left_at only if currently null.
func (s *ParticipantStore) Leave(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	p, ok := s.rows[id]
	if !ok || p.LeftAt != nil {
		return false, nil
	}
	p.LeftAt = &at
	return true, nil
}

// RecordHeartbeat refreshes last_heartbeat_at for a present participant.
func (s *ParticipantStore) RecordHeartbeat(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	p, ok := s.rows[id]
	if !ok || p.LeftAt != nil {
		return false, nil
	}
	p.LastHeartbeatAt = at
	return true, nil
}

// SetPeerID overwrites the peer id for a present participant.
func (s *ParticipantStore) SetPeerID(_ context.Context, id uuid.UUID, peerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	p, ok := s.rows[id]
	if !ok || p.LeftAt != nil {
		return false, nil
	}
	p.PeerSignalingID = &peerID
	return true, nil
}

// ClearPeerID nulls the peer id for a present participant.
func (s *ParticipantStore) ClearPeerID(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	p, ok := s.rows[id]
	if !ok || p.LeftAt != nil {
		return false, nil
	}
	p.PeerSignalingID = nil
	return true, nil
}

// ListActive returns present participants with a heartbeat at or after
// cutoff, in join order.
func (s *ParticipantStore) ListActive(_ context.Context, meetingID uuid.UUID, cutoff time.Time) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var list []models.Participant
	for _, id := range s.order {
		p := s.rows[id]
		if p.MeetingID == meetingID && p.LeftAt == nil && !p.LastHeartbeatAt.Before(cutoff) {
			list = append(list, *p)
		}
	}
	return list, nil
}

// CountActive counts what ListActive would return.
func (s *ParticipantStore) CountActive(ctx context.Context, meetingID uuid.UUID, cutoff time.Time) (int, error) {
	list, err := s.ListActive(ctx, meetingID, cutoff)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}

// EvictStale marks present participants with a heartbeat before cutoff as
// left at the given time.
func (s *ParticipantStore) EvictStale(_ context.Context, meetingID uuid.UUID, cutoff, at time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var ids []uuid.UUID
	for _, id := range s.order {
		p := s.rows[id]
		if p.MeetingID == meetingID && p.LeftAt == nil && p.LastHeartbeatAt.Before(cutoff) {
			leftAt := at
			p.LeftAt = &leftAt
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// EvictStaleAll evicts across every meeting that has not ended.
func (s *ParticipantStore) EvictStaleAll(_ context.Context, cutoff, at time.Time) ([]models.Eviction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var evicted []models.Eviction
	for _, id := range s.order {
		p := s.rows[id]
		if p.LeftAt != nil || !p.LastHeartbeatAt.Before(cutoff) {
			continue
		}
		s.meetings.mu.Lock()
		m, ok := s.meetings.rows[p.MeetingID]
		open := ok && m.EndedAt == nil
		s.meetings.mu.Unlock()
		if !open {
			continue
		}
		leftAt := at
		p.LeftAt = &leftAt
		evicted = append(evicted, models.Eviction{MeetingID: p.MeetingID, ParticipantID: id})
	}
	return evicted, nil
}

// ChatStore is an in-memory chat log. It resolves display names through
// the participant registry the way the SQL join does.
type ChatStore struct {
	mu           sync.Mutex
	messages     []models.ChatMessage
	participants *ParticipantStore

	// Err, when set, fails every call.
	Err error
}

// NewChatStore creates an empty chat log backed by participants.
func NewChatStore(participants *ParticipantStore) *ChatStore {
	return &ChatStore{participants: participants}
}

// Insert appends a message and fills its generated id.
func (s *ChatStore) Insert(_ context.Context, m *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	m.ID = uuid.New()
	s.messages = append(s.messages, *m)
	return nil
}

// ListByMeeting returns the meeting's messages oldest first with display
// names resolved.
func (s *ChatStore) ListByMeeting(_ context.Context, meetingID uuid.UUID) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var list []models.ChatMessage
	for _, m := range s.messages {
		if m.MeetingID != meetingID {
			continue
		}
		s.participants.mu.Lock()
		if p, ok := s.participants.rows[m.ParticipantID]; ok {
			m.DisplayName = p.DisplayName
		}
		s.participants.mu.Unlock()
		list = append(list, m)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].SentAt.Before(list[j].SentAt) })
	return list, nil
}
