package cdn

import (
	"net/url"
	"regexp"
	"strings"
)

// urlPattern baut den Regex für absolute URLs unter der CDN-Domain. Die
// Domain wird als Literal eingesetzt (QuoteMeta) und das Match endet an
// Whitespace, Anführungszeichen, Klammern und Brackets, damit Markdown- und
// HTML-Delimiter nicht mit in die URL rutschen.
func urlPattern(domain string) *regexp.Regexp {
	host := strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
	return regexp.MustCompile(`https?://` + regexp.QuoteMeta(host) + `[^\s"')\]]*`)
}

// stripSignQuery entfernt sign und t aus der Query einer einzelnen URL.
// Bei nicht parsebaren URLs wird der Original-String unverändert zurückgegeben.
func stripSignQuery(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return rawURL
	}
	query.Del("sign")
	query.Del("t")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

// StripSignParams säubert alle CDN-URLs im Inhalt von sign/t-Parametern.
// Wird vor dem Persistieren aufgerufen, damit gespeicherte Artikel nie eine
// bald ablaufende Signatur enthalten. Idempotent.
func StripSignParams(content, domain string) string {
	if content == "" || domain == "" {
		return content
	}
	return urlPattern(domain).ReplaceAllStringFunc(content, stripSignQuery)
}

// RefreshSignParams ersetzt jede CDN-URL im Inhalt durch eine frisch mit dem
// Timestamp-Verfahren signierte Variante. Wird beim Lesen aufgerufen, damit
// jede Auslieferung eine für das konfigurierte Fenster gültige URL bekommt,
// egal wie alt der gespeicherte Inhalt ist.
func RefreshSignParams(content, domain, secret string, expireSeconds int) string {
	if content == "" || domain == "" || secret == "" {
		return content
	}
	return urlPattern(domain).ReplaceAllStringFunc(content, func(match string) string {
		parsed, err := url.Parse(match)
		if err != nil {
			return match
		}
		key := strings.TrimPrefix(parsed.Path, "/")
		if key == "" {
			return match
		}
		return TimestampSignedURL(stripSignQuery(match), key, secret, expireSeconds)
	})
}
