package translation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedLanguage is returned for a target outside the supported set
var ErrUnsupportedLanguage = errors.New("unsupported target language")

// Language is a target language code
type Language string

const (
	Portuguese Language = "pt"
	Spanish    Language = "es"
	French     Language = "fr"
	German     Language = "de"
	Italian    Language = "it"
	Japanese   Language = "ja"
	Chinese    Language = "zh-cn"
)

var languageNames = map[Language]string{
	Portuguese: "Portuguese",
	Spanish:    "Spanish",
	French:     "French",
	German:     "German",
	Italian:    "Italian",
	Japanese:   "Japanese",
	Chinese:    "Chinese (Simplified)",
}

// SupportedLanguages returns the supported target languages in display order
func SupportedLanguages() []Language {
	return []Language{Portuguese, Spanish, French, German, Italian, Japanese, Chinese}
}

// ParseLanguage validates a language code, ignoring case and surrounding space
func ParseLanguage(code string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(code)))
	if !lang.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return lang, nil
}

// Valid reports whether l is a supported target language
func (l Language) Valid() bool {
	_, ok := languageNames[l]
	return ok
}

// Name returns the English name of the language
func (l Language) Name() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return string(l)
}

// BackendCode returns the code understood by LibreTranslate-style backends
func (l Language) BackendCode() string {
	if l == Chinese {
		return "zh"
	}
	return string(l)
}

func (l Language) String() string {
	return string(l)
}
