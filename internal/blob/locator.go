package blob

import (
	"strings"
)

// Locator maps store keys to URLs and back.
//
// Internal URLs have the form <scheme>://<storeID>/<key>. When PublicBase
// is set, published URLs are <PublicBase>/<key> instead; both forms
// resolve back to the same key.
type Locator struct {
	Scheme     string
	StoreID    string
	PublicBase string
}

func (l Locator) internalPrefix() string {
	return l.Scheme + "://" + l.StoreID + "/"
}

func (l Locator) publicPrefix() string {
	if l.PublicBase == "" {
		return ""
	}
	return strings.TrimRight(l.PublicBase, "/") + "/"
}

// URL returns the internal URL of key.
func (l Locator) URL(key string) string {
	return l.internalPrefix() + key
}

// PublicURL returns the URL to share for key: the public form when a
// public base is configured, the internal form otherwise.
func (l Locator) PublicURL(key string) string {
	if p := l.publicPrefix(); p != "" {
		return p + key
	}
	return l.URL(key)
}

// Key resolves url to a key if it belongs to this locator.
func (l Locator) Key(url string) (string, bool) {
	if key, ok := strings.CutPrefix(url, l.internalPrefix()); ok && key != "" {
		return key, true
	}
	if p := l.publicPrefix(); p != "" {
		if key, ok := strings.CutPrefix(url, p); ok && key != "" {
			return key, true
		}
	}
	return "", false
}
