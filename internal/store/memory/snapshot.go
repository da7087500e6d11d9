package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Devansh1501S/Chat-Sphere/internal/model"
)

// snapshot is the single document written to disk. All five entity
// collections are serialized wholesale after every mutation and reloaded
// wholesale at startup.
type snapshot struct {
	Users          []snapshotUser        `json:"users"`
	Conversations  []model.Conversation  `json:"conversations"`
	Participants   []model.Participant   `json:"participants"`
	Messages       []model.Message       `json:"messages"`
	FriendRequests []model.FriendRequest `json:"friend_requests"`
}

// snapshotUser re-tags the user for disk. model.User hides PasswordHash
// from API responses; the snapshot must keep it or every login fails
// after a restart.
type snapshotUser struct {
	model.User
	PasswordHash string `json:"password_hash"`
}

func (s *Store) loadSnapshot() error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(s.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	for i := range snap.Users {
		u := snap.Users[i].User
		u.PasswordHash = snap.Users[i].PasswordHash
		s.users[u.ID] = &u
		s.usersByName[u.Username] = u.ID
		s.nextUserID = max(s.nextUserID, u.ID)
	}
	for i := range snap.Conversations {
		c := snap.Conversations[i]
		s.conversations[c.ID] = &c
		s.participants[c.ID] = make(map[int64]*model.Participant)
		s.nextConvID = max(s.nextConvID, c.ID)
	}
	for i := range snap.Participants {
		p := snap.Participants[i]
		if members, ok := s.participants[p.ConversationID]; ok {
			members[p.UserID] = &p
		}
	}
	for i := range snap.Messages {
		m := snap.Messages[i]
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &m)
		if m.CreatedAt.After(s.lastMsgAt[m.ConversationID]) {
			s.lastMsgAt[m.ConversationID] = m.CreatedAt
		}
		s.nextMsgID = max(s.nextMsgID, m.ID)
	}
	for i := range snap.FriendRequests {
		r := snap.FriendRequests[i]
		s.requests[r.ID] = &r
		s.nextReqID = max(s.nextReqID, r.ID)
	}

	s.log.Info().
		Int("users", len(snap.Users)).
		Int("conversations", len(snap.Conversations)).
		Int("messages", len(snap.Messages)).
		Msg("snapshot loaded")
	return nil
}

// persistLocked rewrites the snapshot. Failures are logged and swallowed:
// a write hiccup must not fail the mutation that already happened in memory.
func (s *Store) persistLocked() {
	if err := s.writeSnapshotLocked(); err != nil {
		s.log.Error().Err(err).Msg("snapshot write failed")
	}
}

func (s *Store) writeSnapshotLocked() error {
	if s.snapshotPath == "" {
		return nil
	}

	snap := snapshot{}
	for _, u := range s.users {
		snap.Users = append(snap.Users, snapshotUser{User: *u, PasswordHash: u.PasswordHash})
	}
	for _, c := range s.conversations {
		snap.Conversations = append(snap.Conversations, *c)
	}
	for _, members := range s.participants {
		for _, p := range members {
			snap.Participants = append(snap.Participants, *p)
		}
	}
	for _, msgs := range s.messages {
		for _, m := range msgs {
			snap.Messages = append(snap.Messages, *m)
		}
	}
	for _, r := range s.requests {
		snap.FriendRequests = append(snap.FriendRequests, *r)
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", s.snapshotPath, time.Now().UnixNano())
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
