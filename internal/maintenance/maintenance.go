// Package maintenance provides the background backup job for SlidePi.
// Backups are tar.gz archives holding the config directory under config/ and
// the media directory under media/.
package maintenance

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	backupPrefix = "slidepi-backup-"
	backupSuffix = ".tar.gz"
	stampLayout  = "2006-01-02T150405"
)

// now is a variable so tests can pin backup timestamps.
var now = time.Now

// Backup describes one archive in the backup directory.
type Backup struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Human   string    `json:"human_size"`
	Created time.Time `json:"created"`
}

// Options configures a Service.
type Options struct {
	ConfigDir string
	MediaDir  string
	BackupDir string
	Keep      int // archives to keep; 0 keeps all
	// Hour is the local hour of the daily backup.
	Hour int
}

// Service runs scheduled backups and serves manual backup requests.
type Service struct {
	configDir string
	mediaDir  string
	backupDir string
	keep      int
	hour      int
}

// New creates a new maintenance Service.
func New(opts Options) *Service {
	return &Service{
		configDir: opts.ConfigDir,
		mediaDir:  opts.MediaDir,
		backupDir: opts.BackupDir,
		keep:      opts.Keep,
		hour:      opts.Hour,
	}
}

// Start runs the daily backup until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	for {
		t := now()
		next := time.Date(t.Year(), t.Month(), t.Day(), s.hour, 0, 0, 0, t.Location())
		if !next.After(t) {
			next = next.Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(t)):
			b, err := s.RunBackupNow()
			if err != nil {
				slog.Error("maintenance: backup failed", "err", err)
			} else {
				slog.Info("maintenance: backup created", "file", b.Path, "size", b.Human)
			}
		}
	}
}

// RunBackupNow writes a new archive and prunes old ones.
func (s *Service) RunBackupNow() (Backup, error) {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return Backup{}, fmt.Errorf("create backup dir: %w", err)
	}
	created := now()
	dest := filepath.Join(s.backupDir, backupPrefix+created.Format(stampLayout)+backupSuffix)
	tmp := dest + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return Backup{}, err
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = addTree(tw, s.configDir, "config")
	if err == nil && s.mediaDir != "" {
		err = addTree(tw, s.mediaDir, "media")
	}
	if err == nil {
		err = tw.Close()
	}
	if err == nil {
		err = gz.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return Backup{}, fmt.Errorf("write backup: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return Backup{}, err
	}

	s.prune()
	return describe(dest)
}

// ListBackups returns the available archives, oldest first.
func (s *Service) ListBackups() ([]Backup, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Backup{}, nil
	}
	if err != nil {
		return nil, err
	}

	backups := []Backup{}
	for _, e := range entries {
		if e.IsDir() || !isBackupName(e.Name()) {
			continue
		}
		b, err := describe(filepath.Join(s.backupDir, e.Name()))
		if err != nil {
			continue
		}
		backups = append(backups, b)
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Name < backups[j].Name })
	return backups, nil
}

// Restore extracts an archive produced by RunBackupNow over the config and
// media directories. The caller restarts the daemon to pick up the result.
func (s *Service) Restore(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		dest, ok := s.restorePath(hdr.Name)
		if !ok {
			slog.Warn("maintenance: skipping archive entry", "name", hdr.Name)
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode)&0777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}

// restorePath maps an archive name to a destination, rejecting anything that
// would land outside the config or media directory.
func (s *Service) restorePath(name string) (string, bool) {
	name = filepath.ToSlash(filepath.Clean(strings.TrimPrefix(name, "/")))
	root, rest, _ := strings.Cut(name, "/")
	var base string
	switch root {
	case "config":
		base = s.configDir
	case "media":
		base = s.mediaDir
	}
	if base == "" || rest == "" || rest == ".." || strings.HasPrefix(rest, "../") {
		return "", false
	}
	return filepath.Join(base, filepath.FromSlash(rest)), true
}

// prune deletes the oldest archives beyond keep.
func (s *Service) prune() {
	if s.keep <= 0 {
		return
	}
	backups, err := s.ListBackups()
	if err != nil || len(backups) <= s.keep {
		return
	}
	for _, b := range backups[:len(backups)-s.keep] {
		if err := os.Remove(b.Path); err != nil {
			slog.Warn("maintenance: failed to prune old backup", "file", b.Path, "err", err)
		} else {
			slog.Info("maintenance: pruned old backup", "file", b.Path)
		}
	}
}

func addTree(tw *tar.Writer, dir, prefix string) error {
	if dir == "" {
		return nil
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = prefix + "/" + filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func describe(p string) (Backup, error) {
	info, err := os.Stat(p)
	if err != nil {
		return Backup{}, err
	}
	name := filepath.Base(p)
	created, err := time.ParseInLocation(stampLayout,
		strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix), time.Local)
	if err != nil {
		created = info.ModTime()
	}
	return Backup{
		Name:    name,
		Path:    p,
		Size:    info.Size(),
		Human:   humanize.Bytes(uint64(info.Size())),
		Created: created,
	}, nil
}

func isBackupName(name string) bool {
	return strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupSuffix)
}
