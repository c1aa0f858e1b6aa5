package gdrive

import (
	"fmt"
	"time"

	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

type transcriptSyncer interface {
	SyncTranscript(localPath, interviewID string) error
}

// Archive writes each transcript to disk and mirrors it to Drive.
type Archive struct {
	local  *storage.TranscriptWriter
	syncer transcriptSyncer
}

func NewArchive(local *storage.TranscriptWriter, syncer transcriptSyncer) *Archive {
	return &Archive{local: local, syncer: syncer}
}

func (a *Archive) Write(interviewID string, at time.Time, lines []storage.TranscriptLine) error {
	if err := a.local.Write(interviewID, at, lines); err != nil {
		return err
	}
	if err := a.syncer.SyncTranscript(a.local.Path(interviewID), interviewID); err != nil {
		return fmt.Errorf("sync transcript %s: %w", interviewID, err)
	}
	return nil
}
