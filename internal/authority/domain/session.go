package domain

import "time"

// SessionEntry is one outstanding refresh or one-time token for a principal:
// the Argon2id hash of the wire token plus its expiry. The raw token is never
// persisted.
type SessionEntry struct {
	Hash      string `json:"hash"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// Expired reports whether the entry is logically dead at now.
func (e SessionEntry) Expired(now time.Time) bool {
	return e.ExpiresAt <= now.Unix()
}

// EntrySet is the persisted collection of session entries for one principal
// (and, for one-time tokens, one audience kind). It is loaded whole, mutated,
// and written back whole.
type EntrySet struct {
	Entries []SessionEntry `json:"entries"`
}

// Purge drops entries whose expiry has passed and reports whether anything
// was removed. Dead entries must never be trusted, so every read purges
// before matching.
func (s *EntrySet) Purge(now time.Time) bool {
	kept := s.Entries[:0]
	for _, e := range s.Entries {
		if !e.Expired(now) {
			kept = append(kept, e)
		}
	}
	changed := len(kept) != len(s.Entries)
	s.Entries = kept
	return changed
}

// Add appends an entry to the set.
func (s *EntrySet) Add(e SessionEntry) {
	s.Entries = append(s.Entries, e)
}

// Empty reports whether no entries remain.
func (s *EntrySet) Empty() bool { return len(s.Entries) == 0 }
