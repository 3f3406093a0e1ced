package synth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedLanguage is returned for a language outside the supported set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language is the language questions are asked and answered in.
type Language string

const (
	French  Language = "fr"
	English Language = "en"
)

// DefaultLanguage is used when no language is given.
const DefaultLanguage = French

// Languages lists the supported languages, primary first.
func Languages() []Language {
	return []Language{French, English}
}

// Valid reports whether l is supported.
func (l Language) Valid() bool {
	return l == French || l == English
}

// Name returns the English name of the language, as used in prompts.
func (l Language) Name() string {
	switch l {
	case French:
		return "French"
	case English:
		return "English"
	default:
		return string(l)
	}
}

func (l Language) String() string {
	return string(l)
}

// ParseLanguage accepts language codes and names; an empty string yields the
// default language.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultLanguage, nil
	case "fr", "fra", "fre", "french", "français", "francais":
		return French, nil
	case "en", "eng", "english", "anglais":
		return English, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
}
