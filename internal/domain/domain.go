package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Course struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"type:text;not null" json:"title"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`
	ImageURL    string    `gorm:"type:text;not null;default:''" json:"image_url"`

	IndexStatus string `gorm:"type:text;not null;default:'none';index" json:"index_status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

// Video is the unit the retrieval indexes are keyed on. A video is hosted on
// exactly one of two platforms; whichever external ID is set is the
// "platform ID" used for index file paths.
type Video struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`

	YoutubeID *string `gorm:"type:text;uniqueIndex" json:"youtube_id,omitempty"`
	VimeoID   *string `gorm:"type:text;uniqueIndex" json:"vimeo_id,omitempty"`

	Title    string `gorm:"type:text;not null" json:"title"`
	VideoURL string `gorm:"type:text;not null;default:''" json:"video_url"`

	// Segment-generation stage and index-build stage are tracked
	// independently for each of the two machine sources.
	TranscriptStatus    string `gorm:"type:text;not null;default:'pending';index" json:"transcript_status"`
	OCRTranscriptStatus string `gorm:"type:text;not null;default:'pending';index" json:"ocr_transcript_status"`
	IndexStatus         string `gorm:"type:text;not null;default:'none';index" json:"index_status"`
	OCRIndexStatus      string `gorm:"type:text;not null;default:'none';index" json:"ocr_index_status"`

	IngestLog datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"ingest_log"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Video) TableName() string { return "video" }

// PlatformID returns the external hosting ID used to key index artifacts.
func (v *Video) PlatformID() string {
	if v.YoutubeID != nil && strings.TrimSpace(*v.YoutubeID) != "" {
		return strings.TrimSpace(*v.YoutubeID)
	}
	if v.VimeoID != nil && strings.TrimSpace(*v.VimeoID) != "" {
		return strings.TrimSpace(*v.VimeoID)
	}
	return ""
}

// Segment is one timestamped unit of machine-extracted text (audio transcript
// line or OCR frame text). Segments for a (video, source) pair are totally
// ordered by StartOffsetSeconds and wholesale-replaced on re-ingestion.
type Segment struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	VideoID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_segment_video_kind" json:"video_id"`
	CourseID uuid.UUID  `gorm:"type:uuid;not null;index" json:"course_id"`
	Kind     SourceKind `gorm:"type:text;not null;index:idx_segment_video_kind" json:"kind"`

	StartOffsetSeconds float64 `gorm:"not null;index" json:"start_offset_seconds"`
	Text               string  `gorm:"type:text;not null" json:"text"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Segment) TableName() string { return "segment" }

// Note is a user-authored annotation; the third segment source. Unlike the
// machine sources, notes mutate individually and may share a timestamp.
type Note struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_note_user_video" json:"user_id"`
	VideoID  uuid.UUID `gorm:"type:uuid;not null;index:idx_note_user_video" json:"video_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`

	Title          string  `gorm:"type:text;not null" json:"title"`
	Content        string  `gorm:"type:text;not null" json:"content"`
	VideoTimestamp float64 `gorm:"not null;default:0" json:"video_timestamp"`

	IndexStatus string `gorm:"type:text;not null;default:'none';index" json:"index_status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Note) TableName() string { return "note" }

// SegmentText is the retrieval-facing view of a note: title and content
// folded into one embeddable body.
func (n *Note) SegmentText() string {
	return "Title: " + n.Title + "\nContent: " + n.Content
}

const DefaultConversationTitle = "New Conversation"

type Conversation struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_conversation_user_video" json:"user_id"`
	VideoID  uuid.UUID `gorm:"type:uuid;not null;index:idx_conversation_user_video" json:"video_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`

	Title string `gorm:"type:text;not null;default:'New Conversation'" json:"title"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversation" }

// ConversationMessage pairs one user query with the produced answer.
// Messages are immutable once created and strictly ordered by CreatedAt.
type ConversationMessage struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`

	Query  string `gorm:"type:text;not null" json:"query"`
	Answer string `gorm:"type:text;not null" json:"answer"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (ConversationMessage) TableName() string { return "conversation_message" }

// SegmentData is the transport shape produced by the speech and OCR
// extractors before segments are persisted.
type SegmentData struct {
	Start   float64 `json:"start"`
	Content string  `json:"content"`
}
