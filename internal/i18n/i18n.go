package i18n

import (
	"embed"
	"io/fs"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/Xuanwo/go-locale"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

var (
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	current   language.Tag
	once      sync.Once
)

// Init initializes the i18n module. Call this once at program startup.
// If lang is empty, the system locale will be detected automatically.
func Init(lang string) {
	once.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

		files, _ := fs.Glob(localeFS, "locales/*.toml")
		for _, f := range files {
			// embedded files are checked by the tests
			_, _ = bundle.LoadMessageFileFS(localeFS, f)
		}

		// POSIX order: LANGUAGE > LC_ALL > LC_MESSAGES > LANG
		langs := []string{}
		if lang != "" {
			langs = append(langs, lang)
		} else if detected, err := locale.Detect(); err == nil {
			langs = append(langs, detected.String())
		}

		localizer = i18n.NewLocalizer(bundle, langs...)
		current = matchTag(langs)
	})
}

// Language returns the tag messages are rendered in, e.g. for picking
// localized names from a geo database.
func Language() language.Tag {
	Init("")
	return current
}

func matchTag(langs []string) language.Tag {
	matcher := language.NewMatcher(bundle.LanguageTags())
	tag, _ := language.MatchStrings(matcher, langs...)
	base, conf := tag.Base()
	if conf == language.No {
		return language.English
	}
	if base.String() == "zh" {
		return language.SimplifiedChinese
	}
	return language.Make(base.String())
}

// T returns the translated string for the given message ID.
func T(messageID string) string {
	return Tf(messageID, nil)
}

// Tf returns the translated string with template data substitution.
func Tf(messageID string, data map[string]interface{}) string {
	Init("")
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}
