package entity

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const MaxUploadBytes = 50 << 20

var allowedExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
}

// ValidateUpload rejects anything the pipeline should never see.
func ValidateUpload(name string, size int64) error {
	if err := ValidateExtension(name); err != nil {
		return err
	}
	return ValidateSize(size)
}

func ValidateExtension(name string) error {
	ext := strings.ToLower(path.Ext(name))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
	return nil
}

func ValidateSize(size int64) error {
	if size > MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}
	return nil
}

// BaseName strips directories and the extension: "uploads/cat.mp4" -> "cat".
func BaseName(videoKey string) string {
	base := path.Base(videoKey)
	return strings.TrimSuffix(base, path.Ext(base))
}

func FrameKey(baseName string, frameIndex int) string {
	return fmt.Sprintf("%s/frame_%d.jpg", baseName, frameIndex)
}

func AnalyzedKey(baseName string) string {
	return baseName + "/analyzed_frame.jpg"
}

func ArchiveKey(baseName string) string {
	return baseName + "/frames.zip"
}

func FramePrefix(baseName string) string {
	return baseName + "/frame_"
}

var frameKeyPattern = regexp.MustCompile(`^(.+)/frame_(\d+)\.jpg$`)

// IsFrameKey reports whether key is a sampled frame of baseName.
func IsFrameKey(baseName, key string) bool {
	m := frameKeyPattern.FindStringSubmatch(key)
	return m != nil && m[1] == baseName
}
