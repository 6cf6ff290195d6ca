package api

import (
	"time"

	"github.com/redlens/collector/internal/store"
)

// creatorDTO is the wire form of a creator, progress included.
type creatorDTO struct {
	UserID         string     `json:"user_id"`
	Nickname       string     `json:"nickname"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	SourceKeyword  string     `json:"source_keyword,omitempty"`
	CurrentFans    int        `json:"current_fans"`
	Status         string     `json:"status"`
	NotesCollected int        `json:"notes_collected"`
	NotesTarget    int        `json:"notes_target"`
	Remaining      int        `json:"remaining"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toCreatorDTO(c store.Creator) creatorDTO {
	return creatorDTO{
		UserID:         c.UserID,
		Nickname:       c.Nickname,
		AvatarURL:      c.AvatarURL,
		SourceKeyword:  c.SourceKeyword,
		CurrentFans:    c.CurrentFans,
		Status:         string(c.Status),
		NotesCollected: c.NotesCollected,
		NotesTarget:    c.NotesTarget,
		Remaining:      c.Remaining(),
		FailureReason:  c.FailureReason,
		LastRunAt:      c.LastRunAt,
		CreatedAt:      c.CreatedAt,
	}
}

func toCreatorDTOs(creators []store.Creator) []creatorDTO {
	dtos := make([]creatorDTO, len(creators))
	for i, c := range creators {
		dtos[i] = toCreatorDTO(c)
	}
	return dtos
}

type noteDTO struct {
	NoteID      string     `json:"note_id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type"`
	Likes       int        `json:"likes"`
	Collects    int        `json:"collects"`
	Comments    int        `json:"comments"`
	NoteURL     string     `json:"note_url"`
	CoverURL    string     `json:"cover_url,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	CrawledAt   time.Time  `json:"crawled_at"`
}

func toNoteDTOs(notes []store.Note) []noteDTO {
	dtos := make([]noteDTO, len(notes))
	for i, n := range notes {
		dtos[i] = noteDTO{
			NoteID:      n.NoteID,
			UserID:      n.UserID,
			Title:       n.Title,
			Description: n.Description,
			Type:        n.Type,
			Likes:       n.Likes,
			Collects:    n.Collects,
			Comments:    n.Comments,
			NoteURL:     n.NoteURL,
			CoverURL:    n.CoverURL,
			CreatedAt:   n.CreatedAt,
			CrawledAt:   n.CrawledAt,
		}
	}
	return dtos
}
