package verify

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// link is one reference extracted from an HTML page.
type link struct {
	URL       string
	Tag       string
	Attribute string
}

// linkAttributes maps element names to the attribute carrying their target.
var linkAttributes = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"video":  "src",
	"audio":  "src",
	"source": "src",
	"iframe": "src",
}

// extractLinks parses HTML and collects every link-bearing attribute.
func extractLinks(r io.Reader) ([]link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr, ok := linkAttributes[n.Data]; ok {
				if v := getAttr(n, attr); v != "" {
					links = append(links, link{URL: v, Tag: n.Data, Attribute: attr})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// shouldCheck filters out links that cannot be verified against the output
// tree: anchors, special protocols and empty targets.
func shouldCheck(u string) bool {
	if u == "" || strings.HasPrefix(u, "#") {
		return false
	}
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(u, prefix) {
			return false
		}
	}
	return true
}
