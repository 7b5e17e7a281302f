package i18n

import (
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func TestCatalogMatch(t *testing.T) {
	c := MustCatalog()
	tests := []struct {
		locale string
		want   language.Tag
	}{
		{"", language.English},
		{"en", language.English},
		{"en-GB", language.English},
		{"uk", language.Ukrainian},
		{"uk-UA", language.Ukrainian},
		{"uk;q=0.9,en;q=0.8", language.Ukrainian},
		{"fr", language.English},
		{"not a tag!!", language.English},
	}
	for _, tc := range tests {
		t.Run(tc.locale, func(t *testing.T) {
			if got := c.Match(tc.locale); got != tc.want {
				t.Fatalf("Match(%q) = %s, want %s", tc.locale, got, tc.want)
			}
		})
	}
}

func TestCatalogTranslate(t *testing.T) {
	c := MustCatalog()
	if got := c.Translate("en", KeyResetRequested); got != english[KeyResetRequested] {
		t.Fatalf("en = %q", got)
	}
	if got := c.Translate("uk-UA", KeyResetRequested); got != ukrainian[KeyResetRequested] {
		t.Fatalf("uk = %q", got)
	}
	body := c.Translate("en", KeyResetMailBody, "tok123", 60)
	if !strings.Contains(body, "tok123") || !strings.Contains(body, "60 minutes") {
		t.Fatalf("body = %q", body)
	}
	if got := c.Translate("en", "no.such.key"); got != "no.such.key" {
		t.Fatalf("unknown key = %q", got)
	}
}

func TestCatalogsCoverSameKeys(t *testing.T) {
	for key := range english {
		if _, ok := ukrainian[key]; !ok {
			t.Errorf("ukrainian catalog missing %s", key)
		}
	}
	for key := range ukrainian {
		if _, ok := english[key]; !ok {
			t.Errorf("english catalog missing %s", key)
		}
	}
}
