package gdrive

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"
)

type snapshotter interface {
	Snapshot(path string) error
}

type backupSyncer interface {
	Backup(localPath string) error
}

// RunBackups snapshots the database to snapshotPath and uploads it every
// interval until ctx is done.
func RunBackups(ctx context.Context, interval time.Duration, store snapshotter, syncer backupSyncer, snapshotPath string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := BackupOnce(store, syncer, snapshotPath); err != nil {
				log.Printf("gdrive backup error: %v", err)
			}
		}
	}
}

func BackupOnce(store snapshotter, syncer backupSyncer, snapshotPath string) error {
	if err := store.Snapshot(snapshotPath); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	defer func() { _ = os.Remove(snapshotPath) }()

	return syncer.Backup(snapshotPath)
}
