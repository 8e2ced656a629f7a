package model

import "time"

// Phrase is a multi-word vocabulary entry, unique per (UserID, Word).
type Phrase struct {
	UserID    int64     `bson:"user_id" json:"-"`
	Word      string    `bson:"word" json:"word"`
	Status    *int      `bson:"status" json:"status"`
	Language  string    `bson:"language" json:"language"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Clone returns a copy that does not share the Status pointer.
func (p Phrase) Clone() Phrase {
	out := p
	if p.Status != nil {
		out.Status = IntPtr(*p.Status)
	}
	return out
}
