package entity

import (
	"fmt"
	"net/url"
	"regexp"
	"unicode/utf8"
)

// Field names reported by upload validation.
const (
	FieldFile        = "file"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldURL         = "url"
)

// Upload limits.
const (
	// MaxFileSize is the exclusive upper bound for an uploaded file, in bytes.
	MaxFileSize = 10_000_000

	TitleMinLength       = 2
	TitleMaxLength       = 20
	DescriptionMaxLength = 20
)

// Field-level messages. Each rule has its own message so the presentation
// layer can show exactly what failed.
const (
	MsgFileRequired        = "file is required"
	MsgFileTooLarge        = "file must be smaller than 10MB"
	MsgFileFormat          = "only PNG, JPEG and GIF files are accepted"
	MsgTitleRequired       = "title is required"
	MsgTitleTooShort       = "title must be at least 2 characters"
	MsgTitleTooLong        = "title must be at most 20 characters"
	MsgDescriptionRequired = "description is required"
	MsgDescriptionTooLong  = "description must be at most 20 characters"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

var acceptedMimeType = regexp.MustCompile(`(?i)^image/(gif|jpeg|png)$`)

// ValidateUpload checks a candidate submission against the upload rules.
// It is a pure function: it never touches the network and returns at most one
// error per field, the first rule that field fails. An empty result means the
// request is valid. The resolved URL is not checked here; a missing URL is a
// precondition failure, not a field error.
func ValidateUpload(req UploadRequest) FieldErrors {
	var errs FieldErrors
	if err := ValidateFile(req.File); err != nil {
		errs = append(errs, err)
	}
	if err := validateTitle(req.Title); err != nil {
		errs = append(errs, err)
	}
	if err := validateDescription(req.Description); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// ValidateFile checks the file presence, size and mime-type rules.
// It is also used on file selection, before the asset upload starts.
func ValidateFile(f *FileInfo) *ValidationError {
	switch {
	case f == nil:
		return &ValidationError{Field: FieldFile, Message: MsgFileRequired}
	case f.Size >= MaxFileSize:
		return &ValidationError{Field: FieldFile, Message: MsgFileTooLarge}
	case !acceptedMimeType.MatchString(f.MimeType):
		return &ValidationError{Field: FieldFile, Message: MsgFileFormat}
	}
	return nil
}

func validateTitle(title string) *ValidationError {
	n := utf8.RuneCountInString(title)
	switch {
	case title == "":
		return &ValidationError{Field: FieldTitle, Message: MsgTitleRequired}
	case n < TitleMinLength:
		return &ValidationError{Field: FieldTitle, Message: MsgTitleTooShort}
	case n > TitleMaxLength:
		return &ValidationError{Field: FieldTitle, Message: MsgTitleTooLong}
	}
	return nil
}

func validateDescription(description string) *ValidationError {
	switch {
	case description == "":
		return &ValidationError{Field: FieldDescription, Message: MsgDescriptionRequired}
	case utf8.RuneCountInString(description) > DescriptionMaxLength:
		return &ValidationError{Field: FieldDescription, Message: MsgDescriptionTooLong}
	}
	return nil
}

// ValidateAssetURL validates the URL returned by the asset store.
// It checks that the URL is well-formed, uses HTTP/HTTPS scheme, and has a host.
func ValidateAssetURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: FieldURL, Message: "URL is required"}
	}

	// DoS protection: enforce maximum URL length
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   FieldURL,
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: FieldURL, Message: "URL must use http or https scheme"}
	}

	if parsedURL.Host == "" {
		return &ValidationError{Field: FieldURL, Message: "URL must have a valid host"}
	}

	return nil
}
