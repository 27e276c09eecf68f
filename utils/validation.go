package utils

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	MaxNodeNameLength = 255
	MaxGroupIDLength  = 128
)

var invalidNameChars = []string{"<", ">", ":", "\"", "|", "?", "*", "\x00", "/", "\\"}

// Check for reserved names (Windows)
var reservedNames = []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

// ValidateNodeName checks a folder or file leaf name.
func ValidateNodeName(name string) error {
	return validation.Validate(name,
		validation.Required.Error("name cannot be empty"),
		validation.RuneLength(1, MaxNodeNameLength).Error(fmt.Sprintf("name too long (max %d characters)", MaxNodeNameLength)),
		validation.By(checkNameCharacters),
	)
}

func checkNameCharacters(value interface{}) error {
	name, _ := value.(string)
	if !utf8.ValidString(name) {
		return errors.New("name contains invalid UTF-8 characters")
	}
	for _, char := range invalidNameChars {
		if strings.Contains(name, char) {
			return fmt.Errorf("name contains invalid character: %q", char)
		}
	}
	if name == "." || name == ".." {
		return errors.New("name cannot be '.' or '..'")
	}
	if strings.HasSuffix(name, ".") {
		return errors.New("name cannot end with a dot")
	}

	nameWithoutExt := strings.TrimSuffix(name, filepath.Ext(name))
	for _, reserved := range reservedNames {
		if strings.EqualFold(nameWithoutExt, reserved) {
			return fmt.Errorf("name uses reserved name: %s", reserved)
		}
	}
	return nil
}

func ValidateGroupID(groupID string) error {
	return validation.Validate(groupID,
		validation.Required.Error("group id cannot be empty"),
		validation.Length(1, MaxGroupIDLength),
	)
}

func ValidateFileSize(size, maxSize int64) error {
	if size < 0 {
		return errors.New("file size cannot be negative")
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", size, maxSize)
	}
	return nil
}
