package catalog

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp", "heic", "bmp", "tif", "tiff"}
	videoExtensions = []string{"mp4", "mov", "m4v", "webm", "avi", "mkv"}

	// timestamped matches the {unixMillis}-{filename} basename of uploads.
	timestamped = regexp.MustCompile(`^\d+-(.+)$`)
)

type mediaKind int

const (
	mediaUnknown mediaKind = iota
	mediaImage
	mediaVideo
)

func EventPrefix(eventID string) string {
	return fmt.Sprintf("events/shared/%s/", eventID)
}

func ImagesPrefix(eventID string) string {
	return EventPrefix(eventID) + "images/"
}

func VideosPrefix(eventID string) string {
	return EventPrefix(eventID) + "videos/"
}

func CoverKey(eventID string) string {
	return EventPrefix(eventID) + "cover.jpg"
}

func SelfiePrefix(userID string) string {
	return fmt.Sprintf("users/%s/selfies/", userID)
}

func LogoPrefix(userID string) string {
	return fmt.Sprintf("users/%s/logo/", userID)
}

// CanonicalIdentity names the logical image behind key. Uploads of the same
// file at different times share an identity; keys without a timestamp
// prefix are their own identity.
func CanonicalIdentity(key string) string {
	if m := timestamped.FindStringSubmatch(path.Base(key)); m != nil {
		return "ts:" + strings.ToLower(m[1])
	}
	return "key:" + key
}

func extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

func kindOf(name string) mediaKind {
	ext := extension(name)
	for _, e := range imageExtensions {
		if e == ext {
			return mediaImage
		}
	}
	for _, e := range videoExtensions {
		if e == ext {
			return mediaVideo
		}
	}
	return mediaUnknown
}

// cleanName reduces a client supplied file name to a single safe segment.
func cleanName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.ReplaceAll(name, " ", "_")
}
