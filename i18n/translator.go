package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator renders a message key for a locale. Unknown keys come back
// unchanged.
type Translator interface {
	Translate(locale, key string, args ...any) string
}

// Catalog is the built-in English and Ukrainian translator.
type Catalog struct {
	builder   *catalog.Builder
	supported []language.Tag
	matcher   language.Matcher
}

// NewCatalog registers the built-in messages. English is the fallback.
func NewCatalog() (*Catalog, error) {
	supported := []language.Tag{language.English, language.Ukrainian}
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, tag := range supported {
		for key, msg := range builtin[tag] {
			if err := b.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("i18n: register %s/%s: %w", tag, key, err)
			}
		}
	}
	return &Catalog{
		builder:   b,
		supported: supported,
		matcher:   language.NewMatcher(supported),
	}, nil
}

// MustCatalog is NewCatalog for package initialisation.
func MustCatalog() *Catalog {
	c, err := NewCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// Translate accepts a BCP 47 tag or an Accept-Language header value.
func (c *Catalog) Translate(locale, key string, args ...any) string {
	p := message.NewPrinter(c.Match(locale), message.Catalog(c.builder))
	return p.Sprintf(key, args...)
}

// Match resolves locale to one of the supported tags.
func (c *Catalog) Match(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return c.supported[0]
	}
	var tags []language.Tag
	if strings.ContainsAny(locale, ",;") {
		parsed, _, err := language.ParseAcceptLanguage(locale)
		if err != nil {
			return c.supported[0]
		}
		tags = parsed
	} else {
		tag, err := language.Parse(locale)
		if err != nil {
			return c.supported[0]
		}
		tags = []language.Tag{tag}
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return c.supported[0]
	}
	return c.supported[idx]
}
