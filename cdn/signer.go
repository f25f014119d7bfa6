// Package cdn implementiert die beiden Link-Signatur-Verfahren des Blogs:
// die App-seitige Key-Verschleierung (Frontend-Vertrag) und den
// Timestamp-Hotlink-Schutz des CDN-Anbieters. Die Algorithmen sind
// Byte-Verträge mit Anbieter und Frontend und dürfen nicht abweichen.
package cdn

import (
	"crypto/md5"
	"fmt"
	"strings"
	"time"
)

// signWindow ist das Zeitfenster, in dem eine App-Signatur gültig bleibt.
const signWindow = 3600

// timeNow ist in Tests austauschbar.
var timeNow = time.Now

// SignKey erzeugt die App-Level-Signatur eines Objekt-Keys:
// md5("{key}-{timestamp}-{secret}") als Hex.
func SignKey(key string, timestamp int64, secret string) string {
	raw := fmt.Sprintf("%s-%d-%s", key, timestamp, secret)
	return fmt.Sprintf("%x", md5.Sum([]byte(raw)))
}

// VerifyKey prüft eine App-Level-Signatur und lehnt sie ab, sobald der
// Zeitstempel älter als das Gültigkeitsfenster ist.
func VerifyKey(key string, timestamp int64, sign, secret string) bool {
	if timeNow().Unix()-timestamp > signWindow {
		return false
	}
	return sign == SignKey(key, timestamp, secret)
}

// TimestampSignedURL baut eine URL mit dem Timestamp-Verfahren des Anbieters:
// sign = md5(secret + urlencode(path) + hex(expire)), angehängt als
// sign=<hex>&t=<hexExpire>. Die Pfad-Segmente werden einzeln Prozent-kodiert,
// die Trenner-Slashes bleiben unkodiert; der Expiry-Wert ist Hex in
// Kleinbuchstaben. Beides muss exakt dem Verifikationsalgorithmus des
// Anbieters entsprechen.
func TimestampSignedURL(baseURL, key, secret string, expireSeconds int) string {
	expire := timeNow().Unix() + int64(expireSeconds)
	t := fmt.Sprintf("%x", expire)

	path := key
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	parts := strings.Split(path, "/")
	encoded := make([]string, len(parts))
	for i, part := range parts {
		encoded[i] = percentEncode(part)
	}
	encodedPath := strings.Join(encoded, "/")

	sign := fmt.Sprintf("%x", md5.Sum([]byte(secret+encodedPath+t)))

	separator := "?"
	if strings.Contains(baseURL, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%ssign=%s&t=%s", baseURL, separator, sign, t)
}

// percentEncode kodiert jedes Byte außer den unreservierten Zeichen
// (RFC 3986), identisch zu urllib.parse.quote(part, safe='') beim Anbieter.
// url.PathEscape lässt Sub-Delimiter durch und würde die Signatur brechen.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
			c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// Signer ist die Link-Signatur-Fähigkeit für Artikel-Inhalte. Die Variante
// wird per Konfiguration gewählt statt an jedem Call-Site zu verzweigen.
type Signer interface {
	// RefreshContent signiert alle CDN-Links im Inhalt neu (Lesezeitpunkt).
	RefreshContent(content string) string
	// StripContent entfernt Signatur-Parameter aus allen CDN-Links
	// (vor dem Persistieren, damit nie ablaufende Signaturen gespeichert werden).
	StripContent(content string) string
}

// ProviderSigner schreibt Inhalte mit dem Timestamp-Verfahren des Anbieters um.
type ProviderSigner struct {
	Domain        string
	Secret        string
	ExpireSeconds int
}

func (p *ProviderSigner) RefreshContent(content string) string {
	return RefreshSignParams(content, p.Domain, p.Secret, p.ExpireSeconds)
}

func (p *ProviderSigner) StripContent(content string) string {
	return StripSignParams(content, p.Domain)
}

// ApplicationSigner lässt Inhalte unangetastet: beim App-Verfahren laufen
// Links über den Signed-URL-Endpunkt statt über Inhalts-Rewriting. Gespeicherte
// Inhalte werden trotzdem von Anbieter-Parametern befreit.
type ApplicationSigner struct {
	Domain string
}

func (a *ApplicationSigner) RefreshContent(content string) string {
	return content
}

func (a *ApplicationSigner) StripContent(content string) string {
	return StripSignParams(content, a.Domain)
}
