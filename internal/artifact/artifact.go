package artifact

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Kind discriminates the media variants an upload can carry.
type Kind string

const (
	KindPhoto        Kind = "photo"
	KindVideo        Kind = "video"
	KindImagePackage Kind = "image_package"
)

var ErrIncomplete = errors.New("artifact incomplete")

// Artifact is an immutable description of captured media ready for upload.
// Path points at the media file for photos and videos. Package is set only
// for KindImagePackage.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Path      string    `json:"path,omitempty"`
	Package   *Package  `json:"package,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Package bundles a still image with a separately recorded audio clip when
// the client cannot mux them into one container. The server performs the
// real muxing, keyed off the stitching flag in the upload request.
type Package struct {
	DirectoryPath string    `json:"directory_path"`
	ImagePath     string    `json:"image_path"`
	AudioPath     string    `json:"audio_path"`
	MetadataPath  string    `json:"metadata_path"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewPhoto(id, path string, createdAt time.Time) *Artifact {
	return &Artifact{ID: id, Kind: KindPhoto, Path: path, CreatedAt: createdAt}
}

func NewVideo(id, path string, createdAt time.Time) *Artifact {
	return &Artifact{ID: id, Kind: KindVideo, Path: path, CreatedAt: createdAt}
}

func NewImagePackage(id string, pkg Package) *Artifact {
	return &Artifact{ID: id, Kind: KindImagePackage, Package: &pkg, CreatedAt: pkg.CreatedAt}
}

// MediaPath returns the file transmitted as the upload's "file" field.
func (a *Artifact) MediaPath() string {
	if a.Kind == KindImagePackage && a.Package != nil {
		return a.Package.ImagePath
	}
	return a.Path
}

// AudioPath returns the sibling audio file, or empty when the artifact
// carries no audio.
func (a *Artifact) AudioPath() string {
	if a.Kind == KindImagePackage && a.Package != nil {
		return a.Package.AudioPath
	}
	return ""
}

// UploadFilename is the multipart filename the backend expects for the
// "file" field of this variant.
func (a *Artifact) UploadFilename() string {
	switch a.Kind {
	case KindVideo:
		return "upload.mp4"
	case KindImagePackage:
		return "image.jpg"
	default:
		return "upload.jpg"
	}
}

// RequiresStitching reports whether the server must mux image and audio
// into a single container.
func (a *Artifact) RequiresStitching() bool {
	return a.Kind == KindImagePackage
}

// Validate checks the files the artifact references actually exist. For a
// package all three entries must be present under the directory.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrIncomplete)
	}
	switch a.Kind {
	case KindPhoto, KindVideo:
		if a.Path == "" {
			return fmt.Errorf("%w: missing media path", ErrIncomplete)
		}
		return statFile(a.Path)
	case KindImagePackage:
		if a.Package == nil {
			return fmt.Errorf("%w: missing package descriptor", ErrIncomplete)
		}
		for _, p := range []string{a.Package.ImagePath, a.Package.AudioPath, a.Package.MetadataPath} {
			if err := statFile(p); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrIncomplete, a.Kind)
	}
}

func statFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrIncomplete, path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrIncomplete, path)
	}
	return nil
}
