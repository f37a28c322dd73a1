package book

import (
	"fmt"
	"strings"

	"github.com/simp-lee/epub"
	"golang.org/x/net/html"
)

// Chapter is one unit of book text headed for one output audio file.
// Indices are contiguous starting at 0 in spine order.
type Chapter struct {
	Index int
	Title string
	Text  string
}

// Info is the extraction result for one EPUB.
type Info struct {
	Title    string
	Chapters []Chapter
}

// Extract opens the EPUB and returns its content chapters as plain text,
// skipping chapters with no speakable text. Titles come from the TOC, else
// the first heading in the chapter body, else a positional fallback.
func Extract(path string) (Info, error) {
	b, err := epub.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open epub %s: %w", path, err)
	}
	defer b.Close()

	info := Info{}
	if titles := b.Metadata().Titles; len(titles) > 0 {
		info.Title = strings.TrimSpace(titles[0])
	}

	for _, ch := range b.ContentChapters() {
		text, err := ch.TextContent()
		if err != nil {
			return Info{}, fmt.Errorf("extract chapter %s: %w", ch.Href, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		title := strings.TrimSpace(ch.Title)
		if title == "" {
			title = headingTitle(ch)
		}
		if title == "" {
			title = fmt.Sprintf("Chapter_%d", len(info.Chapters)+1)
		}

		info.Chapters = append(info.Chapters, Chapter{
			Index: len(info.Chapters),
			Title: title,
			Text:  text,
		})
	}
	return info, nil
}

// headingTitle returns the text of the first h1/h2/h3 in the chapter body.
func headingTitle(ch epub.Chapter) string {
	body, err := ch.BodyHTML()
	if err != nil {
		return ""
	}
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}
	if h := findHeading(root); h != nil {
		return strings.TrimSpace(nodeText(h))
	}
	return ""
}

func findHeading(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3":
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if h := findHeading(c); h != nil {
			return h
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
