package retrieval

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/incuisenix/backend/internal/domain"
)

// Key names one index artifact. Machine sources are keyed by the video's
// platform ID alone; note indexes are additionally scoped to a user so
// they are physically separable per user.
type Key struct {
	Kind       domain.SourceKind
	PlatformID string
	UserID     uuid.UUID // set only for SourceNote
}

func TranscriptKey(platformID string) Key {
	return Key{Kind: domain.SourceAudioTranscript, PlatformID: platformID}
}

func OCRKey(platformID string) Key {
	return Key{Kind: domain.SourceOCR, PlatformID: platformID}
}

func NotesKey(userID uuid.UUID, platformID string) Key {
	return Key{Kind: domain.SourceNote, PlatformID: platformID, UserID: userID}
}

func (k Key) Validate() error {
	if k.PlatformID == "" {
		return fmt.Errorf("index key missing platform id")
	}
	switch k.Kind {
	case domain.SourceAudioTranscript, domain.SourceOCR:
		return nil
	case domain.SourceNote:
		if k.UserID == uuid.Nil {
			return fmt.Errorf("notes index key missing user id")
		}
		return nil
	default:
		return fmt.Errorf("index key has invalid kind %q", k.Kind)
	}
}

// Path returns the on-disk location of the artifact under the index
// root.
func (k Key) Path(root string) string {
	switch k.Kind {
	case domain.SourceAudioTranscript:
		return filepath.Join(root, "transcripts", k.PlatformID+".idx")
	case domain.SourceOCR:
		return filepath.Join(root, "ocr", k.PlatformID+".idx")
	case domain.SourceNote:
		return filepath.Join(root, "notes", k.UserID.String(), k.PlatformID+".idx")
	default:
		return filepath.Join(root, "unknown", k.PlatformID+".idx")
	}
}

// LockName is the redis mutex name serializing builds of this artifact.
func (k Key) LockName() string {
	if k.Kind == domain.SourceNote {
		return fmt.Sprintf("index:%s:%s:%s", k.Kind, k.UserID, k.PlatformID)
	}
	return fmt.Sprintf("index:%s:%s", k.Kind, k.PlatformID)
}
