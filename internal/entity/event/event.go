package event

import "time"

// TransactionCommitted is published after an entry was committed to the ledger
// repository. Pushed is false when the push failed and the commit is only local.
type TransactionCommitted struct {
	ID          string    `json:"id"`
	UserID      int64     `json:"user_id"`
	Date        string    `json:"date"`
	File        string    `json:"file"`
	Entry       string    `json:"entry"`
	Pushed      bool      `json:"pushed"`
	CommittedAt time.Time `json:"committed_at"`
}
