package domain

// Status values shared by the per-video pipeline fields and the per-note
// index field. The set is closed; anything else in the column is a bug the
// reconciliation sweep resets.
const (
	StatusNone       = "none"
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexing   = "indexing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// SourceKind identifies which evidence source a segment (and its index)
// belongs to.
type SourceKind string

const (
	SourceAudioTranscript SourceKind = "audio_transcript"
	SourceOCR             SourceKind = "ocr"
	SourceNote            SourceKind = "note"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceAudioTranscript, SourceOCR, SourceNote:
		return true
	}
	return false
}
