package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Key-Namensschema, siehe auch den View-Sync-Job und die Ressourcen-Liste.
const (
	// ViewsKeyPattern matcht alle Fast-Counter-Keys beim SCAN.
	ViewsKeyPattern = "article:*:views"
	// ResourceListVersionKey ist der Generationszähler der Ressourcen-Liste.
	ResourceListVersionKey = "resources:list:version"
)

// ArticleKey ist der Key des Artikel-Detail-Snapshots.
func ArticleKey(articleID uint) string {
	return fmt.Sprintf("article:%d", articleID)
}

// ArticleViewsKey ist der Key des Fast-Counters eines Artikels.
func ArticleViewsKey(articleID uint) string {
	return fmt.Sprintf("article:%d:views", articleID)
}

// ParseArticleViewsKey extrahiert die Artikel-ID aus einem Fast-Counter-Key.
func ParseArticleViewsKey(key string) (uint, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "article" || parts[2] != "views" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// ResourceListKey ist der versionierte Key einer Ressourcen-Listen-Seite.
// Die Version ist Teil des Keys: ein Bump macht alle alten Seiten unerreichbar,
// ohne sie einzeln löschen zu müssen; Reste verfallen über die TTL.
func ResourceListKey(version string, page, size int, mediaType string) string {
	if mediaType == "" {
		mediaType = "all"
	}
	return fmt.Sprintf("resources:list:v%s:%d:%d:%s", version, page, size, mediaType)
}
