package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

const (
	paperSource   = "research_paper"
	paperCategory = "medical_research"
)

// LoadPapers reads every .txt and .md file directly under dir. Markdown is
// flattened to plain text. Titles are file names without extension.
func LoadPapers(ctx context.Context, dir string, now time.Time) ([]model.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read papers dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md":
			names = append(names, e.Name())
		default:
			logutil.GetLogger(ctx).Debug("skip unsupported paper file", zap.String("file", e.Name()))
		}
	}
	sort.Strings(names)
	docs := make([]model.Document, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		content := string(raw)
		if strings.EqualFold(filepath.Ext(name), ".md") {
			content = MarkdownToText(raw)
		}
		docs = append(docs, model.Document{
			Content: content,
			Metadata: model.DocumentMetadata{
				Title:       strings.TrimSuffix(name, filepath.Ext(name)),
				Source:      paperSource,
				Category:    []string{paperCategory},
				PublishDate: now.UTC().Format(time.RFC3339),
			},
		})
	}
	return docs, nil
}

// MarkdownToText renders the text content of each top-level markdown block,
// separated by blank lines so the chunker sees paragraph boundaries.
func MarkdownToText(src []byte) string {
	reader := text.NewReader(src)
	doc := goldmark.New().Parser().Parse(reader)
	var blocks []string
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if s := strings.TrimSpace(blockText(node, src)); s != "" {
			blocks = append(blocks, s)
		}
	}
	return strings.Join(blocks, "\n\n")
}

func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return buf.String()
	}
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if child.Kind() == ast.KindParagraph || child.Kind() == ast.KindListItem || child.Kind() == ast.KindHeading {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch c := child.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(c.Value)
		case *ast.CodeSpan:
			for t := c.FirstChild(); t != nil; t = t.NextSibling() {
				if txt, ok := t.(*ast.Text); ok {
					buf.Write(txt.Segment.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
