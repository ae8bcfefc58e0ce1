package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"promptbatch/internal/i18n"
)

type localeContextKey struct{}
type countryContextKey struct{}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// Proxy headers carrying the caller's country, most specific first.
var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

var zhCountries = map[string]bool{"CN": true, "TW": true, "HK": true, "MO": true, "SG": true}

// I18N picks the locale used for notices and error messages ("en" or "zh").
// An explicit X-Locale wins, then Accept-Language, then the caller's country,
// then defaultLocale.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			ctx := context.WithValue(r.Context(), localeContextKey{}, detectLocale(r, defaultLocale, country))
			if country != "" {
				ctx = context.WithValue(ctx, countryContextKey{}, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback, country string) string {
	for _, h := range []string{"X-Locale", "Accept-Language"} {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return baseLocale(v)
		}
	}
	switch {
	case zhCountries[strings.ToUpper(country)]:
		return "zh"
	case country != "":
		return "en"
	case fallback != "":
		return baseLocale(fallback)
	}
	return "en"
}

func baseLocale(raw string) string {
	base, _ := i18n.Match(raw).Base()
	return base.String()
}

// ResolveCountry returns the caller's upper-case ISO country code from proxy
// headers or, failing that, from lookup. Unknown codes yield "".
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, h := range countryHeaders {
		if code := countryCode(r.Header.Get(h)); code != "" {
			return code
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return countryCode(country)
}

// countryCode drops placeholders such as Cloudflare's "XX" and "T1".
func countryCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 2 || code == "XX" || code == "T1" {
		return ""
	}
	return code
}

// ClientIP returns the first X-Forwarded-For hop, else the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeContextKey{}).(string); ok {
		return v
	}
	return "en"
}

func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(countryContextKey{}).(string)
	return v
}
