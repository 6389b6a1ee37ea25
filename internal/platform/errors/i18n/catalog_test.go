package i18n

import "testing"

func TestGetCatalogFallback(t *testing.T) {
	base := GetCatalog("en-US")
	if base == nil {
		t.Fatal("expected base catalog")
	}
	if got := GetCatalog("missing-locale"); got != base {
		t.Fatalf("catalog = %q, want en-US fallback", got.Locale())
	}
	if got := GetCatalog(""); got != base {
		t.Fatalf("catalog = %q, want en-US for empty locale", got.Locale())
	}
}

func TestGetCatalogMatchesClosestLocale(t *testing.T) {
	tests := map[string]string{
		"en":    "en-US",
		"en-GB": "en-US",
		"bn":    "bn-BD",
		"bn-IN": "bn-BD",
	}
	for locale, want := range tests {
		if got := GetCatalog(locale).Locale(); got != want {
			t.Fatalf("GetCatalog(%q) = %q, want %q", locale, got, want)
		}
	}
}

func TestCatalogsCoverEveryCode(t *testing.T) {
	for _, cat := range []*Catalog{enUSCatalog, bnBDCatalog} {
		for code := range enUSCatalog.messages {
			if _, ok := cat.messages[code]; !ok {
				t.Fatalf("%s catalog missing %s", cat.locale, code)
			}
		}
	}
}

func TestFormatUsesMetadata(t *testing.T) {
	got := GetCatalog("en-US").Format(CodeFetchFailed, map[string]string{"cache_key": "bookings-u1"})
	if got != "Could not load bookings-u1" {
		t.Fatalf("format = %q", got)
	}
}

func TestFormatFallbacks(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "hello {{.Name}}",
	})

	if cat.Format("unknown", nil) != "unknown" {
		t.Fatal("expected code fallback when template missing")
	}
	if got := cat.Format("code", nil); got != "hello " {
		t.Fatalf("format = %q, want missing metadata rendered empty", got)
	}
}

func TestFormatTemplateErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ if .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ if .Name }}" {
		t.Fatal("expected template fallback on parse error")
	}
}

func TestFormatTemplateExecutionErrorFallback(t *testing.T) {
	cat := NewCatalog("test", map[Code]string{
		"code": "{{ call .Name }}",
	})
	if cat.Format("code", map[string]string{"Name": "X"}) != "{{ call .Name }}" {
		t.Fatal("expected template fallback on execute error")
	}
}

func TestRegisterCatalog(t *testing.T) {
	custom := NewCatalog("custom", map[Code]string{"code": "ok"})
	RegisterCatalog("custom", custom)
	if got := GetCatalog("custom"); got != custom {
		t.Fatal("expected registered catalog")
	}
}
