// Package fingerprint produces deterministic digests over the current state
// of an upstream listing. Equality of two digests is the sole
// change-detection signal; no other heuristics are applied.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Pair is one (identity, last-modified) tuple from an API listing.
type Pair struct {
	ID       string
	Modified string
}

// Pairs digests a set of (id, last-modified) pairs. The pairs are sorted
// before serialization so the digest is invariant under input order.
func Pairs(pairs []Pair) string {
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ID != sorted[j].ID {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Modified < sorted[j].Modified
	})

	serialized := make([][2]string, len(sorted))
	for i, p := range sorted {
		serialized[i] = [2]string{p.ID, p.Modified}
	}
	// Marshal of a slice of fixed-size arrays is deterministic.
	data, err := json.Marshal(serialized)
	if err != nil {
		// Marshaling string arrays cannot fail; keep the digest total anyway.
		data = []byte(fmt.Sprint(serialized))
	}
	return digest(data)
}

// CanonicalHTML digests page markup after stripping content an operator does
// not care about: script/style/noscript subtrees, comments, and volatile
// attributes that change per request and would otherwise flag every poll as
// changed.
func CanonicalHTML(markup string) (string, error) {
	canonical, err := canonicalize(markup)
	if err != nil {
		return "", err
	}
	return digest([]byte(canonical)), nil
}

var volatileAttrs = map[string]struct{}{
	"data-timestamp": {},
	"data-session":   {},
	"data-nonce":     {},
	"data-csrf":      {},
}

var strippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
}

func canonicalize(markup string) (string, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	strip(root)
	var sb strings.Builder
	if err := html.Render(&sb, root); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return sb.String(), nil
}

func strip(n *html.Node) {
	var next *html.Node
	for child := n.FirstChild; child != nil; child = next {
		next = child.NextSibling
		if removable(child) {
			n.RemoveChild(child)
			continue
		}
		strip(child)
	}
	if n.Type == html.ElementNode && len(n.Attr) > 0 {
		kept := n.Attr[:0]
		for _, attr := range n.Attr {
			if _, volatile := volatileAttrs[attr.Key]; !volatile {
				kept = append(kept, attr)
			}
		}
		n.Attr = kept
	}
}

func removable(n *html.Node) bool {
	if n.Type == html.CommentNode {
		return true
	}
	if n.Type == html.ElementNode {
		_, stripped := strippedElements[n.Data]
		return stripped
	}
	return false
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
