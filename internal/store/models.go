package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Project struct {
	ID          string
	Name        string
	Description string
	Status      string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Idea is the authoritative shape of a card on the prioritization matrix.
// Version is incremented by the database on every accepted mutation and is
// the basis for all optimistic-concurrency checks; clients never set it.
type Idea struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Status      string     `json:"status"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Version     int64      `json:"version"`
	LockOwner   *string    `json:"lockOwner,omitempty"`
	LockExpires *time.Time `json:"lockExpiresAt,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IdeaPatch is a partial idea mutation. Nil fields are left untouched when
// the patch is merged, so a bare position change never clobbers text fields
// edited by someone else.
type IdeaPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Status      *string  `json:"status,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
}

// Merge returns a copy of idea with all non-nil patch fields applied.
func (p IdeaPatch) Merge(idea Idea) Idea {
	if p.Title != nil {
		idea.Title = *p.Title
	}
	if p.Description != nil {
		idea.Description = *p.Description
	}
	if p.Category != nil {
		idea.Category = *p.Category
	}
	if p.Status != nil {
		idea.Status = *p.Status
	}
	if p.X != nil {
		idea.X = *p.X
	}
	if p.Y != nil {
		idea.Y = *p.Y
	}
	return idea
}

type Attachment struct {
	ID          string
	IdeaID      string
	FileName    string
	ContentType string
	Size        int64
	ObjectKey   string
	UploadedBy  string
	CreatedAt   time.Time
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}
