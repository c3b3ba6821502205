package model

import "time"

// ZeroHash is the object id git reports for a deleted ref.
const ZeroHash = "0000000000000000000000000000000000000000"

// Commit is a commit that landed on a branch.
type Commit struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	Hash           string    `json:"hash"`
	Branch         string    `json:"branch"`
	Message        string    `json:"message"`
	AuthorEmail    string    `json:"author_email"`
	CommitterEmail string    `json:"committer_email"`
	CommittedAt    time.Time `json:"committed_at"`
}

func (c *Commit) EntityKind() Kind { return KindCommit }
func (c *Commit) EntityID() int64  { return c.ID }

// ShortHash returns the abbreviated commit hash.
func (c *Commit) ShortHash() string {
	if len(c.Hash) > 8 {
		return c.Hash[:8]
	}
	return c.Hash
}
