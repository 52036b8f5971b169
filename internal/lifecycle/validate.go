package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SupportedVideoTypes are the containers the conversion function accepts.
var SupportedVideoTypes = []string{
	"video/mp4",
	"video/quicktime",
	"video/webm",
	"video/x-matroska",
	"video/x-msvideo",
}

// Validate runs the pre-flight checks. It makes no network calls.
func (c *Controller) Validate(in Input) error {
	if strings.TrimSpace(in.AudiencePrompt) == "" {
		return &ValidationError{Field: "audience description", Reason: "is required"}
	}
	if _, err := detectVideo(in.VideoPath); err != nil {
		return err
	}
	if in.DurationSeconds < 0 {
		return &ValidationError{Field: "video duration", Reason: "cannot be negative"}
	}
	if limit := c.opts.MaxVideoSeconds; limit > 0 && in.DurationSeconds > float64(limit) {
		return &ValidationError{
			Field:  "video duration",
			Reason: fmt.Sprintf("%.0fs exceeds the %ds limit", in.DurationSeconds, limit),
		}
	}
	return nil
}

// detectVideo sniffs the file content and returns its MIME type when it is
// a supported video container.
func detectVideo(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &ValidationError{Field: "video", Reason: "is required"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &ValidationError{Field: "video", Reason: fmt.Sprintf("%s does not exist", path)}
		}
		return "", fmt.Errorf("stat video: %w", err)
	}
	if info.IsDir() {
		return "", &ValidationError{Field: "video", Reason: fmt.Sprintf("%s is a directory", path)}
	}
	if info.Size() == 0 {
		return "", &ValidationError{Field: "video", Reason: "file is empty"}
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect video type: %w", err)
	}
	for _, t := range SupportedVideoTypes {
		if mt.Is(t) {
			return t, nil
		}
	}
	return "", &ValidationError{Field: "video", Reason: fmt.Sprintf("type %s is not supported", mt.String())}
}
