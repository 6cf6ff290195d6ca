// Package artifact reads and normalizes the JSON output files the external
// crawler drops after a run. Engagement counts arrive as display strings
// ("2.1万", "3千", "999+") and are parsed into integers; raw notes are
// cleaned into store rows.
package artifact

import (
	"strconv"
	"strings"
	"time"

	"github.com/redlens/collector/internal/store"
)

const noteURLPrefix = "https://www.xiaohongshu.com/explore/"

// RawNote mirrors one entry of a crawler output file. Fields the cleaner
// does not use are omitted.
type RawNote struct {
	NoteID         string `json:"note_id"`
	UserID         string `json:"user_id"`
	Nickname       string `json:"nickname"`
	Avatar         string `json:"avatar"`
	Title          string `json:"title"`
	Desc           string `json:"desc"`
	Type           string `json:"type"`
	LikedCount     string `json:"liked_count"`
	CollectedCount string `json:"collected_count"`
	CommentCount   string `json:"comment_count"`
	Time           int64  `json:"time"`
	ImageList      string `json:"image_list"`
	SourceKeyword  string `json:"source_keyword"`
}

// ParseCount converts a display count such as "10万+", "2.1万" or "4834"
// into an integer. Unparseable input yields zero.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.TrimSuffix(s, "+")

	scale := 1.0
	switch {
	case strings.Contains(s, "万"):
		s = strings.ReplaceAll(s, "万", "")
		scale = 10000
	case strings.Contains(s, "千"):
		s = strings.ReplaceAll(s, "千", "")
		scale = 1000
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(f * scale)
}

// Clean normalizes a raw note into a store row. The note type collapses to
// "video" or "image"; the crawler's "normal" and anything unknown become
// "image". Missing identifiers are the caller's problem to filter.
func Clean(raw RawNote) store.Note {
	noteType := "image"
	if raw.Type == "video" {
		noteType = "video"
	}

	var created *time.Time
	if raw.Time > 0 {
		t := time.UnixMilli(raw.Time).UTC()
		created = &t
	}

	cover := ""
	if raw.ImageList != "" {
		cover = strings.SplitN(raw.ImageList, ",", 2)[0]
	}

	return store.Note{
		NoteID:      raw.NoteID,
		UserID:      raw.UserID,
		Title:       raw.Title,
		Description: raw.Desc,
		Type:        noteType,
		Likes:       ParseCount(raw.LikedCount),
		Collects:    ParseCount(raw.CollectedCount),
		Comments:    ParseCount(raw.CommentCount),
		NoteURL:     noteURLPrefix + raw.NoteID,
		CoverURL:    cover,
		CreatedAt:   created,
	}
}
