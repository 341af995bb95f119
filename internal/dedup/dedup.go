// Package dedup computes the keys used to detect duplicate items: the
// canonical URL (enforced unique in storage) and an advisory content hash.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"news_digest/internal/model"
)

const trackingPrefix = "utm_"

var dropParams = map[string]bool{
	"spm":    true,
	"from":   true,
	"source": true,
}

type param struct {
	key, value string
}

// NormalizeURL returns the canonical form of raw: fragment removed, tracking
// parameters dropped and the remaining query sorted by name. A URL that cannot
// be parsed is returned trimmed and otherwise untouched.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false

	params := parseQuery(u.RawQuery)
	kept := params[:0]
	for _, p := range params {
		if strings.HasPrefix(p.key, trackingPrefix) || dropParams[p.key] {
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].key != kept[j].key {
			return kept[i].key < kept[j].key
		}
		return kept[i].value < kept[j].value
	})

	parts := make([]string, 0, len(kept))
	for _, p := range kept {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}

// parseQuery splits a raw query keeping order and blank values. Pairs that
// fail to unescape are kept verbatim.
func parseQuery(raw string) []param {
	var out []param
	for _, pair := range strings.Split(raw, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if uv, err := url.QueryUnescape(v); err == nil {
			v = uv
		}
		if k == "" {
			continue
		}
		out = append(out, param{key: k, value: v})
	}
	return out
}

// publishedLayout matches how storage writes published_at, so the hash does
// not depend on the configured time zone.
const publishedLayout = "2006-01-02T15:04:05Z"

// ContentHash fingerprints an item's visible content. It is a secondary
// duplicate signal and is not enforced unique.
func ContentHash(title, summary string, publishedAt time.Time, rawURL string) string {
	var published string
	if !publishedAt.IsZero() {
		published = publishedAt.UTC().Format(publishedLayout)
	}
	h := sha256.Sum256([]byte(title + "|" + summary + "|" + published + "|" + rawURL))
	return hex.EncodeToString(h[:])
}

// Apply fills the dedup keys of item from its current fields.
func Apply(item *model.Item) {
	item.NormalizedURL = NormalizeURL(item.URL)
	item.ContentHash = ContentHash(item.Title, item.Summary, item.PublishedAt, item.URL)
}
