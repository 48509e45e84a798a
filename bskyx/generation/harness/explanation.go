package harness

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Point is one bullet of a final answer.
type Point struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Explanation is a final answer split into its bullet points.
type Explanation struct {
	Points []Point `json:"points"`
}

var trailingSource = regexp.MustCompile(`\s*\(([^()]+)\)\s*$`)

var markdown = goldmark.New()

// ParseExplanation reads the top-level bullet list of a final answer. A trailing
// parenthesised segment or the first link of a bullet becomes its source. Text
// without a list becomes a single point.
func ParseExplanation(answer string) Explanation {
	src := []byte(answer)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var points []Point
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		item, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		if list := item.Parent(); list == nil || list.Parent() == nil || list.Parent().Kind() != ast.KindDocument {
			return ast.WalkSkipChildren, nil
		}

		var b strings.Builder
		var links []string
		collectText(item, src, &b, &links)
		if point, ok := newPoint(b.String(), links); ok {
			points = append(points, point)
		}
		return ast.WalkSkipChildren, nil
	})

	if len(points) == 0 {
		if point, ok := newPoint(answer, nil); ok {
			points = append(points, point)
		}
	}
	return Explanation{Points: points}
}

func newPoint(raw string, links []string) (Point, bool) {
	body := strings.Join(strings.Fields(raw), " ")
	if body == "" {
		return Point{}, false
	}
	point := Point{Text: body}
	if m := trailingSource.FindStringSubmatchIndex(body); m != nil {
		point.Source = strings.TrimSpace(body[m[2]:m[3]])
		point.Text = strings.TrimSpace(body[:m[0]])
	} else if len(links) > 0 {
		point.Source = links[0]
	}
	return point, true
}

// collectText flattens inline content, skipping nested lists.
func collectText(n ast.Node, src []byte, b *strings.Builder, links *[]string) {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.List:
			continue
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.AutoLink:
			url := string(c.URL(src))
			b.WriteString(url)
			*links = append(*links, url)
		case *ast.Link:
			*links = append(*links, string(c.Destination))
			collectText(c, src, b, links)
		default:
			collectText(c, src, b, links)
			if c.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
		}
	}
}
