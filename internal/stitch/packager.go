package stitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/avitale/snapjournal/internal/artifact"
)

// ErrStitching wraps any packaging step failure. The caller falls back to
// the original still image; no partial package ever escapes.
var ErrStitching = errors.New("stitching failed")

const (
	ImageEntry    = "image.jpg"
	AudioEntry    = "audio.m4a"
	MetadataEntry = "metadata.json"
)

// Metadata is the package descriptor. It is written only after both media
// files are in place, so a directory containing it is guaranteed complete.
type Metadata struct {
	AudioDurationMS int64     `json:"audio_duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// Packager combines a still image and an audio clip into one addressable
// package directory, standing in for the container muxing the client
// cannot do itself.
type Packager struct {
	cacheDir string
	maxWidth int
	quality  int
	clock    func() time.Time
}

func NewPackager(cacheDir string, maxWidth, quality int) *Packager {
	if maxWidth <= 0 {
		maxWidth = 1280
	}
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Packager{
		cacheDir: cacheDir,
		maxWidth: maxWidth,
		quality:  quality,
		clock:    time.Now,
	}
}

// Package normalizes the image, copies both media files into a fresh
// uniquely named directory and writes the metadata descriptor last. Any
// step failure aborts, removes the partial directory and reports
// ErrStitching.
func (p *Packager) Package(ctx context.Context, imagePath, audioPath string, audioDuration time.Duration) (*artifact.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStitching, err)
	}

	img, err := imaging.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open image: %v", ErrStitching, err)
	}
	if img.Bounds().Dx() > p.maxWidth {
		img = imaging.Resize(img, p.maxWidth, 0, imaging.Lanczos)
	}

	createdAt := p.clock().UTC()
	dir := filepath.Join(p.cacheDir, fmt.Sprintf("pkg-%d-%s", createdAt.UnixMilli(), uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create package dir: %v", ErrStitching, err)
	}

	dstImage := filepath.Join(dir, ImageEntry)
	if err := imaging.Save(img, dstImage, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, p.abort(dir, fmt.Errorf("save image: %w", err))
	}

	dstAudio := filepath.Join(dir, AudioEntry)
	if err := copyFile(audioPath, dstAudio); err != nil {
		return nil, p.abort(dir, fmt.Errorf("copy audio: %w", err))
	}

	dstMeta := filepath.Join(dir, MetadataEntry)
	meta := Metadata{
		AudioDurationMS: audioDuration.Milliseconds(),
		CreatedAt:       createdAt,
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, p.abort(dir, fmt.Errorf("encode metadata: %w", err))
	}
	if err := os.WriteFile(dstMeta, payload, 0o644); err != nil {
		return nil, p.abort(dir, fmt.Errorf("write metadata: %w", err))
	}

	return artifact.NewImagePackage(uuid.NewString(), artifact.Package{
		DirectoryPath: dir,
		ImagePath:     dstImage,
		AudioPath:     dstAudio,
		MetadataPath:  dstMeta,
		DurationMS:    meta.AudioDurationMS,
		CreatedAt:     createdAt,
	}), nil
}

// Discard removes a package directory. Called after a successful upload and
// on "start over" so orphaned temp directories never accumulate.
func (p *Packager) Discard(a *artifact.Artifact) error {
	if a == nil || a.Kind != artifact.KindImagePackage || a.Package == nil {
		return nil
	}
	if a.Package.DirectoryPath == "" {
		return nil
	}
	if err := os.RemoveAll(a.Package.DirectoryPath); err != nil {
		return fmt.Errorf("remove package dir: %w", err)
	}
	return nil
}

// ReadMetadata loads a package descriptor from its directory.
func ReadMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataEntry))
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func (p *Packager) abort(dir string, cause error) error {
	// A failed step must not leave a partial directory behind.
	_ = os.RemoveAll(dir)
	return fmt.Errorf("%w: %v", ErrStitching, cause)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
