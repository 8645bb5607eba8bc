package storage

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxFilenameLength  = 100
	maxExtensionLength = 10
)

var (
	parenSuffixRe = regexp.MustCompile(`\s*[（(][^（）()]*[)）]\s*$`)
	underscoreRe  = regexp.MustCompile(`_+`)
)

var folderByExtension = map[string]string{}

func init() {
	for folder, exts := range map[string][]string{
		"images":       {"jpg", "jpeg", "png", "gif", "bmp", "webp", "tif", "tiff", "heic", "svg"},
		"documents":    {"pdf", "doc", "docx", "txt", "rtf", "odt", "md", "ppt", "pptx"},
		"spreadsheets": {"xls", "xlsx", "csv", "ods"},
		"audio":        {"mp3", "wav", "m4a", "aac", "flac", "ogg", "amr"},
		"videos":       {"mp4", "mov", "avi", "mkv", "wmv", "flv", "webm"},
	} {
		for _, ext := range exts {
			folderByExtension[ext] = folder
		}
	}
}

// FolderForExtension picks the storage folder for a file extension
// (with or without the leading dot)
func FolderForExtension(ext string) string {
	if folder, ok := folderByExtension[strings.ToLower(strings.TrimPrefix(ext, "."))]; ok {
		return folder
	}
	return "others"
}

// SanitizeFilename makes an uploaded name safe for object keys: parenthesised
// suffixes such as "(1)" are stripped, anything that is neither ASCII
// alphanumeric, '-', '.', '_' nor a CJK ideograph becomes '_', underscore
// runs collapse, extensions over 10 characters are dropped, and the result
// is capped at 100 characters.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	rawExt := filepath.Ext(name)
	base := strings.TrimSuffix(name, rawExt)
	for parenSuffixRe.MatchString(base) {
		base = parenSuffixRe.ReplaceAllString(base, "")
	}

	var ext strings.Builder
	for _, r := range strings.ToLower(strings.TrimPrefix(rawExt, ".")) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			ext.WriteRune(r)
		}
	}
	// anything longer is not a real extension
	suffix := ""
	if ext.Len() > 0 && ext.Len() <= maxExtensionLength {
		suffix = "." + ext.String()
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' || r == '_'):
			b.WriteRune(r)
		case unicode.Is(unicode.Han, r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	clean := strings.Trim(underscoreRe.ReplaceAllString(b.String(), "_"), "_.")
	if clean == "" {
		clean = "file"
	}

	limit := max(maxFilenameLength-utf8.RuneCountInString(suffix), 1)
	if runes := []rune(clean); len(runes) > limit {
		clean = string(runes[:limit])
	}
	return clean + suffix
}
