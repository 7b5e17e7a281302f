// Package i18n holds the user-facing message catalog of the auth engine.
//
// Messages are registered in a golang.org/x/text catalog for English and
// Ukrainian. Locales are matched with language.Matcher, so "uk-UA" or
// "uk;q=0.9,en" resolve to Ukrainian and anything unsupported falls back to
// English.
package i18n
