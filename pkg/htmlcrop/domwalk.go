package htmlcrop

import (
	"strings"

	"golang.org/x/net/html"
)

// walk performs a depth-first traversal of n, calling visit on every node.
// If visit returns false, traversal of that subtree stops.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	classes := strings.Fields(attr(n, "class"))
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}

// findByClass returns every descendant element node carrying the given CSS
// class, in document order.
func findByClass(n *html.Node, class string) []*html.Node {
	var out []*html.Node
	walk(n, func(node *html.Node) bool {
		if node.Type == html.ElementNode && hasClass(node, class) {
			out = append(out, node)
		}
		return true
	})
	return out
}

// firstByClass returns the first descendant element carrying class, or nil.
func firstByClass(n *html.Node, class string) *html.Node {
	matches := findByClass(n, class)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// firstByTag returns the first descendant element with the given tag name.
func firstByTag(n *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(n, func(node *html.Node) bool {
		if found != nil {
			return false
		}
		if node.Type == html.ElementNode && node.Data == tag {
			found = node
			return false
		}
		return true
	})
	return found
}

// textContent returns the concatenated text of n and its descendants,
// trimmed.
func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		return true
	})
	return strings.TrimSpace(sb.String())
}
