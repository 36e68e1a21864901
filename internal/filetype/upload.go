package filetype

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// DefaultMaxBytes is the upload ceiling used when none is configured.
const DefaultMaxBytes int64 = 50 * 1024 * 1024

const maxFilenameLen = 200

// AllowedExtensions lists what the upload boundary accepts.
var AllowedExtensions = []string{".pdf", ".png", ".jpg", ".jpeg"}

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrContentMismatch = errors.New("content does not match extension")
)

var safeName = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidationError is a client error; Message is safe to return to the caller.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Err }

// AllowedExtension returns the lowercased extension of filename when it is
// accepted by the upload boundary, or "" otherwise.
func AllowedExtension(filename string) string {
	ext := ExtOf(filename)
	for _, a := range AllowedExtensions {
		if ext == a {
			return ext
		}
	}
	return ""
}

// SanitizeFilename reduces an uploaded name to a safe basename. Names with
// characters outside [a-zA-Z0-9_.-] become "upload". The result is capped at
// 200 characters and ends with ext.
func SanitizeFilename(filename, ext string) string {
	base := strings.TrimSpace(path.Base(strings.ReplaceAll(filename, "\\", "/")))
	if base == "" || base == "." || base == ".." || base == "/" || !safeName.MatchString(base) {
		base = "upload"
	}
	if len(base) > maxFilenameLen {
		base = base[:maxFilenameLen]
	}
	if ext != "" && !strings.HasSuffix(strings.ToLower(base), ext) {
		base += ext
	}
	return base
}

// Validator checks uploads before anything touches disk.
type Validator struct {
	MaxBytes int64
	detector *Detector
}

// NewValidator returns a Validator; maxBytes <= 0 uses DefaultMaxBytes.
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{MaxBytes: maxBytes, detector: New()}
}

// Validate checks extension, size and magic bytes and returns the accepted
// extension. Errors are always *ValidationError.
func (v *Validator) Validate(filename string, content []byte) (string, error) {
	ext := AllowedExtension(filename)
	if ext == "" {
		return "", &ValidationError{
			Message: "Unsupported file type. Allowed: " + strings.Join(AllowedExtensions, ", "),
			Err:     ErrUnsupportedType,
		}
	}
	if len(content) == 0 {
		return "", &ValidationError{Message: "File is empty", Err: ErrEmptyFile}
	}
	if int64(len(content)) > v.MaxBytes {
		return "", &ValidationError{
			Message: fmt.Sprintf("File too large. Maximum size: %d MB", v.MaxBytes/(1024*1024)),
			Err:     ErrTooLarge,
		}
	}
	info := v.detector.DetectBytes(content)
	if !info.Matches(ext) {
		return "", &ValidationError{
			Message: fmt.Sprintf("File content (%s) does not match extension %s", info.Description, ext),
			Err:     ErrContentMismatch,
		}
	}
	return ext, nil
}
