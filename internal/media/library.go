// Package media stores uploaded slide images and their thumbnails.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sys/unix"

	"github.com/brianhealey/slidepi/internal/models"
)

const thumbDirName = "thumbs"

// defaultMaxPixels caps decoded image size. A small compressed file can
// declare dimensions that would not fit in memory once decoded.
const defaultMaxPixels = 50_000_000

// extensions maps accepted sniffed content types to stored file extensions.
var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Options configures a Library.
type Options struct {
	Dir            string
	URLPrefix      string // defaults to "/media"
	MaxUploadBytes int64
	MaxPixels      int // width*height limit, defaults to 50 MP
	MinFreeBytes   uint64
	ThumbWidth     int
	// FreeSpace overrides the statfs-based free space check.
	FreeSpace func(dir string) (uint64, error)
}

// Library writes uploads under uuid names in Dir and keeps a JPEG thumbnail
// for each in Dir/thumbs.
type Library struct {
	dir        string
	prefix     string
	maxBytes   int64
	maxPixels  int
	minFree    uint64
	thumbWidth uint
	freeSpace  func(string) (uint64, error)
}

// New creates the media directories and returns a Library.
func New(opts Options) (*Library, error) {
	if opts.Dir == "" {
		return nil, errors.New("media: directory required")
	}
	if err := os.MkdirAll(filepath.Join(opts.Dir, thumbDirName), 0755); err != nil {
		return nil, fmt.Errorf("media: creating %s: %w", opts.Dir, err)
	}
	l := &Library{
		dir:        opts.Dir,
		prefix:     strings.TrimSuffix(opts.URLPrefix, "/"),
		maxBytes:   opts.MaxUploadBytes,
		maxPixels:  opts.MaxPixels,
		minFree:    opts.MinFreeBytes,
		thumbWidth: uint(opts.ThumbWidth),
		freeSpace:  opts.FreeSpace,
	}
	if l.prefix == "" {
		l.prefix = "/media"
	}
	if l.maxBytes <= 0 {
		l.maxBytes = 20 << 20
	}
	if l.maxPixels <= 0 {
		l.maxPixels = defaultMaxPixels
	}
	if l.thumbWidth == 0 {
		l.thumbWidth = 320
	}
	if l.freeSpace == nil {
		l.freeSpace = statfsFree
	}
	return l, nil
}

// Dir returns the media directory.
func (l *Library) Dir() string { return l.dir }

// Handler serves the media directory. Mount it under the URL prefix with the
// prefix stripped.
func (l *Library) Handler() http.Handler {
	return http.FileServer(http.Dir(l.dir))
}

// Store validates and saves one upload. The returned Image has no ID; the
// caller assigns one when adding it to the collection.
func (l *Library) Store(r io.Reader, fileName string) (models.Image, error) {
	if free, err := l.freeSpace(l.dir); err != nil {
		slog.Warn("media: free space check failed", "dir", l.dir, "err", err)
	} else if free < l.minFree {
		return models.Image{}, models.ErrResourceExhausted(fmt.Sprintf(
			"storage full: only %s free, %s required", humanize.Bytes(free), humanize.Bytes(l.minFree)))
	}

	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return models.Image{}, fmt.Errorf("media: reading upload: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return models.Image{}, models.ErrTooLarge(fmt.Sprintf(
			"%s exceeds the %s upload limit", fileName, humanize.IBytes(uint64(l.maxBytes))))
	}

	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return models.Image{}, models.ErrUnsupportedMedia(fmt.Sprintf("%s is not a supported image (%s)", fileName, contentType))
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.Image{}, models.ErrUnsupportedMedia(fmt.Sprintf("%s could not be decoded: %v", fileName, err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > l.maxPixels/cfg.Height {
		return models.Image{}, models.ErrTooLarge(fmt.Sprintf(
			"%s is %dx%d, over the %s pixel limit", fileName, cfg.Width, cfg.Height, humanize.SIWithDigits(float64(l.maxPixels), 0, "")))
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Image{}, models.ErrUnsupportedMedia(fmt.Sprintf("%s could not be decoded: %v", fileName, err))
	}

	stored := uuid.NewString() + ext
	if err := writeAtomic(filepath.Join(l.dir, stored), data); err != nil {
		if errors.Is(err, unix.ENOSPC) {
			return models.Image{}, models.ErrResourceExhausted("storage full while saving " + fileName)
		}
		return models.Image{}, err
	}

	out := models.Image{
		Src:      path.Join(l.prefix, stored),
		Title:    models.TitleFromFileName(fileName),
		FileName: fileName,
		Stored:   stored,
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		Size:     int64(len(data)),
		Taken:    exifDateTime(data),
	}

	if err := l.writeThumb(stored, img); err != nil {
		slog.Warn("media: thumbnail failed", "file", stored, "err", err)
	} else {
		out.Thumb = path.Join(l.prefix, thumbDirName, thumbName(stored))
	}

	slog.Info("media: stored upload", "file", stored, "name", fileName, "size", humanize.Bytes(uint64(len(data))))
	return out, nil
}

// Remove deletes the image file and its thumbnail. Missing files are ignored.
func (l *Library) Remove(img models.Image) error {
	if img.Stored == "" {
		return nil
	}
	name := filepath.Base(img.Stored)
	for _, p := range []string{
		filepath.Join(l.dir, name),
		filepath.Join(l.dir, thumbDirName, thumbName(name)),
	} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("media: removing %s: %w", p, err)
		}
	}
	return nil
}

// FreeSpace reports the bytes available to unprivileged users in the media
// directory.
func (l *Library) FreeSpace() (uint64, error) {
	return l.freeSpace(l.dir)
}

func (l *Library) writeThumb(stored string, img image.Image) error {
	thumb := resize.Thumbnail(l.thumbWidth, l.thumbWidth, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(l.dir, thumbDirName, thumbName(stored)), buf.Bytes())
}

func thumbName(stored string) string {
	return strings.TrimSuffix(stored, filepath.Ext(stored)) + ".jpg"
}

func exifDateTime(data []byte) string {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return "" // Not all images have EXIF
	}
	tag, err := x.Get(exif.DateTime)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

func writeAtomic(p string, data []byte) error {
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("media: writing %s: %w", p, err)
	}
	return os.Rename(tmp, p)
}

func statfsFree(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
