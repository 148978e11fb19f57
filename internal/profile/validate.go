package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/ovaphlow/pitchfork/client-core-go/internal/profile/entity"
)

var (
	ErrInvalidLanguage   = errors.New("profile: invalid language tag")
	ErrInvalidBirthday   = errors.New("profile: birthday must be YYYY-MM-DD")
	ErrInvalidVisibility = errors.New("profile: visibility must be public or private")
)

// NormalizeLanguage returns the canonical BCP 47 form of tag ("fr-fr" → "fr-FR").
func NormalizeLanguage(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", nil
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, tag)
	}
	return t.String(), nil
}

// Normalize trims and validates an outgoing record.
func Normalize(rec entity.Record) (entity.Record, error) {
	rec.Phone = strings.TrimSpace(rec.Phone)
	rec.CustomURL = strings.TrimSpace(rec.CustomURL)
	rec.Description = strings.TrimSpace(rec.Description)

	lang, err := NormalizeLanguage(rec.Language)
	if err != nil {
		return entity.Record{}, err
	}
	rec.Language = lang

	if rec.Birthday != "" {
		if _, err := time.Parse("2006-01-02", rec.Birthday); err != nil {
			return entity.Record{}, ErrInvalidBirthday
		}
	}
	switch rec.Visibility {
	case "", "public", "private":
	default:
		return entity.Record{}, ErrInvalidVisibility
	}
	return rec, nil
}
