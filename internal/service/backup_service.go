package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"hayaoshi/internal/storage"
)

const backupVersion = "1.0"

// BackupData is the file format of a local store backup
type BackupData struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Players    []PlayerBackup `json:"players"`
}

// PlayerBackup holds everything kept under one namespace of the local store
type PlayerBackup struct {
	Namespace string           `json:"namespace"`
	Snapshot  storage.Snapshot `json:"snapshot"`
}

// KeyLister lists the keys of a KV by prefix
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// BackupService exports and restores the local history and stats
type BackupService struct {
	keys  KeyLister
	local *storage.Local
}

// NewBackupService creates a backup service over local, whose KV is listed by keys
func NewBackupService(keys KeyLister, local *storage.Local) *BackupService {
	return &BackupService{keys: keys, local: local}
}

// Export writes a backup of every namespace to outputPath
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	log.Println("Starting local store export...")

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	backup, err := s.ExportTo(ctx, file)
	if err != nil {
		return err
	}

	log.Printf("Local store exported successfully to %s", outputPath)
	log.Printf("Exported: %d players", len(backup.Players))
	return nil
}

// ExportTo encodes a backup of every namespace to w
func (s *BackupService) ExportTo(ctx context.Context, w io.Writer) (*BackupData, error) {
	namespaces, err := s.namespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	backup := &BackupData{
		Version:    backupVersion,
		ExportedAt: time.Now(),
		Players:    make([]PlayerBackup, 0, len(namespaces)),
	}
	for _, ns := range namespaces {
		snap, err := s.local.Namespaced(ns).Export(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to export %q: %w", ns, err)
		}
		backup.Players = append(backup.Players, PlayerBackup{Namespace: ns, Snapshot: snap})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return backup, nil
}

// Import restores a backup file. Namespaces present in the file are replaced,
// others are left alone.
func (s *BackupService) Import(ctx context.Context, inputPath string) error {
	log.Printf("Starting local store import from %s...", inputPath)

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores a backup read from reader
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != backupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt)

	for _, p := range backup.Players {
		if err := s.local.Namespaced(p.Namespace).Import(ctx, p.Snapshot); err != nil {
			return fmt.Errorf("failed to import %q: %w", p.Namespace, err)
		}
	}

	log.Printf("Local store import completed: %d players", len(backup.Players))
	return nil
}

// namespaces derives the distinct key prefixes from the stored blob names
func (s *BackupService) namespaces(ctx context.Context) ([]string, error) {
	keys, err := s.keys.Keys(ctx, "")
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, key := range keys {
		for _, name := range []string{storage.KeyHistory, storage.KeyUserStats, storage.KeyWordStats} {
			if strings.HasSuffix(key, name) {
				seen[strings.TrimSuffix(key, name)] = true
				break
			}
		}
	}

	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}
