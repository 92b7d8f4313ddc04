// internal/models/session.go
package models

import "time"

// HistoryEntry is one prior turn in a conversation.
type HistoryEntry struct {
	Query     string    `json:"query"`
	Source    string    `json:"source"` // "rule" or "ai"
	RuleID    string    `json:"ruleId,omitempty"`
	RowCount  int       `json:"rowCount"`
	Timestamp time.Time `json:"timestamp"`
}

// QuerySession is per-conversation state used for follow-up queries.
// Only the request owning the session id mutates it; last write wins.
type QuerySession struct {
	ID        string         `json:"id"`
	History   []HistoryEntry `json:"history"`
	LastSeen  EntitySet      `json:"lastSeen,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// MaxHistoryEntries caps per-session history; older turns are dropped.
const MaxHistoryEntries = 10

// Remember appends a turn and folds newly seen entities into LastSeen.
func (s *QuerySession) Remember(entry HistoryEntry, seen EntitySet) {
	s.History = append(s.History, entry)
	if len(s.History) > MaxHistoryEntries {
		s.History = s.History[len(s.History)-MaxHistoryEntries:]
	}
	if len(seen) > 0 {
		if s.LastSeen == nil {
			s.LastSeen = make(EntitySet, len(seen))
		}
		for class, e := range seen {
			s.LastSeen[class] = e
		}
	}
	s.UpdatedAt = time.Now().UTC()
}
