package user

import (
	"time"
)

// Record is a Telegram user allowed to write to the ledger.
type Record struct {
	ID           int64
	UserName     string
	AuthorizedAt time.Time
}

func (r *Record) DisplayName() string {
	if r.UserName != "" {
		return "@" + r.UserName
	}
	return "<noname>"
}
