package extract

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/zhidu-qidian/Spiders/internal/dom"
)

var paragraphTags = dom.Set("p", "section")

// ScoreContent locates the main content container under root (normally
// <body>). Paragraph-heavy subtrees score high and hyperlinked text scores
// nothing; the smallest div/article that still carries more than 60% of the
// root score wins. It returns nil when no container beats root.
func ScoreContent(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	scores := scoreTree(root)
	total := scores[root]
	best := root
	lowest := total
	walkDescendants(root, func(n *html.Node) bool {
		if dom.IsElement(n, "div", "article") {
			s := scores[n]
			if 0.6*float64(total) < float64(s) && s <= lowest {
				lowest = s
				best = n
			}
		}
		return true
	})
	if dom.IsElement(best, "body") {
		return nil
	}
	return best
}

// scoreTree computes integer scores for root and every element reached
// through non-paragraph, non-image parents.
func scoreTree(root *html.Node) map[*html.Node]int {
	var order []*html.Node
	stack := []*html.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, n)
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			if c.Type == html.ElementNode && c.Data != "img" && !paragraphTags[c.Data] {
				stack = append(stack, c)
			}
		}
	}

	scores := make(map[*html.Node]int, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		weight := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && paragraphTags[c.Data] {
				weight++
			}
		}
		if weight == 0 {
			weight = 1
		}
		total := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.ElementNode:
				var s int
				switch {
				case c.Data == "img":
					if !dom.HasAncestor(c, "a") {
						s = 3
					}
				case paragraphTags[c.Data]:
					s = 3
					if dom.HasDescendant(c, "img") {
						s += 10
					}
					s += textLen(dom.Text(c)) / 40 * 6 * weight
				default:
					s = scores[c]
				}
				scores[c] = s
				total += s
			case html.TextNode:
				if !dom.HasAncestor(c, "a") {
					total += textLen(c.Data) / 40 * 3
				}
			}
		}
		scores[n] = total
	}
	return scores
}

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
