package gdrive

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	mimeGoogleDoc = "application/vnd.google-apps.document"
	mimeSQLite    = "application/vnd.sqlite3"

	backupKey  = "db"
	backupName = "ghost-interviewer.db"
)

type fileStore interface {
	Create(name, mimeType, parentID string, media io.Reader) (string, error)
	Update(fileID string, media io.Reader) error
}

// Syncer mirrors local files into one Drive folder. Each key maps to a
// single Drive file that is created once and updated afterwards.
type Syncer struct {
	files    fileStore
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return newSyncer(driveFiles{svc: svc}, folderID), nil
}

func newSyncer(files fileStore, folderID string) *Syncer {
	return &Syncer{
		files:    files,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}
}

// SyncTranscript uploads a markdown transcript as a Google Doc named after
// the interview.
func (s *Syncer) SyncTranscript(localPath, interviewID string) error {
	return s.sync(localPath, "interview:"+interviewID, "ghost-interviewer-"+interviewID, mimeGoogleDoc)
}

// Backup uploads a database snapshot.
func (s *Syncer) Backup(localPath string) error {
	return s.sync(localPath, backupKey, backupName, mimeSQLite)
}

func (s *Syncer) sync(localPath, key, name, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[key]; ok {
		if err := s.files.Update(fileID, f); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	id, err := s.files.Create(name, mimeType, s.folderID, f)
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[key] = id
	return nil
}

type driveFiles struct {
	svc *drive.Service
}

func (d driveFiles) Create(name, mimeType, parentID string, media io.Reader) (string, error) {
	doc, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).Media(media).Do()
	if err != nil {
		return "", err
	}
	return doc.Id, nil
}

func (d driveFiles) Update(fileID string, media io.Reader) error {
	_, err := d.svc.Files.Update(fileID, &drive.File{}).Media(media).Do()
	return err
}
