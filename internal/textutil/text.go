package textutil

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/width"
)

// Unescape decodes HTML entities.
func Unescape(s string) string {
	return html.UnescapeString(s)
}

// NormalizePunctuation folds full-width letters, digits and spaces to their
// narrow forms and collapses whitespace runs. CJK punctuation is kept.
func NormalizePunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if isFoldable(r) {
			r = foldRune(r)
		}
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func isFoldable(r rune) bool {
	if r == '　' {
		return true
	}
	if r < 0xFF01 || r > 0xFF5E {
		return false
	}
	folded := foldRune(r)
	return unicode.IsLetter(folded) || unicode.IsDigit(folded)
}

func foldRune(r rune) rune {
	folded := width.Fold.String(string(r))
	out, _ := utf8.DecodeRuneInString(folded)
	return out
}

// CleanTitle unescapes, normalises and trims a title.
func CleanTitle(title string) string {
	return strings.TrimSpace(NormalizePunctuation(Unescape(title)))
}

// ExtractText returns the visible text of an HTML fragment.
func ExtractText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}

// RuneLen counts characters rather than bytes.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// MD5 returns the hex md5 of s.
func MD5(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}
