package seer

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// plainText renders an agent's Markdown reply as plain text and collects its
// headings. Tarot replies usually head each card section with the card name,
// so the headings are handed to card extraction as a hint.
func plainText(md string) (text string, headings []string) {
	pr := &plainRenderer{}
	gm := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough, extension.Table),
		goldmark.WithRenderer(renderer.NewRenderer(
			renderer.WithNodeRenderers(util.Prioritized(pr, 1)),
		)),
	)
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return md, nil
	}
	return strings.TrimSpace(collapseBlankLines(buf.String())), pr.headings
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// plainRenderer is a goldmark NodeRenderer that drops all markup.
type plainRenderer struct {
	listCounter []int
	headings    []string
	inHeading   *strings.Builder
}

func (r *plainRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindDocument, r.passThrough)
	reg.Register(ast.KindHeading, r.renderHeading)
	reg.Register(ast.KindParagraph, r.renderBlockEnd)
	reg.Register(ast.KindBlockquote, r.passThrough)
	reg.Register(ast.KindFencedCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindList, r.renderList)
	reg.Register(ast.KindListItem, r.renderListItem)
	reg.Register(ast.KindTextBlock, r.renderTextBlock)
	reg.Register(ast.KindThematicBreak, r.renderBlockEnd)
	reg.Register(ast.KindHTMLBlock, r.skip)

	reg.Register(ast.KindText, r.renderText)
	reg.Register(ast.KindString, r.renderString)
	reg.Register(ast.KindCodeSpan, r.passThrough)
	reg.Register(ast.KindEmphasis, r.passThrough)
	reg.Register(ast.KindLink, r.passThrough)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
	reg.Register(ast.KindImage, r.skip)
	reg.Register(ast.KindRawHTML, r.skip)

	reg.Register(extast.KindStrikethrough, r.passThrough)
	reg.Register(extast.KindTable, r.renderBlockEnd)
	reg.Register(extast.KindTableHeader, r.renderRowEnd)
	reg.Register(extast.KindTableRow, r.renderRowEnd)
	reg.Register(extast.KindTableCell, r.renderCell)
}

func (r *plainRenderer) write(w util.BufWriter, s string) {
	_, _ = w.WriteString(s)
	if r.inHeading != nil {
		r.inHeading.WriteString(s)
	}
}

func (r *plainRenderer) passThrough(util.BufWriter, []byte, ast.Node, bool) (ast.WalkStatus, error) {
	return ast.WalkContinue, nil
}

func (r *plainRenderer) skip(util.BufWriter, []byte, ast.Node, bool) (ast.WalkStatus, error) {
	return ast.WalkSkipChildren, nil
}

func (r *plainRenderer) renderHeading(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("\n")
		r.inHeading = &strings.Builder{}
		return ast.WalkContinue, nil
	}
	if h := strings.TrimSpace(r.inHeading.String()); h != "" {
		r.headings = append(r.headings, h)
	}
	r.inHeading = nil
	_, _ = w.WriteString("\n")
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderBlockEnd(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			_, _ = w.Write(seg.Value(source))
		}
		_, _ = w.WriteString("\n")
	}
	return ast.WalkSkipChildren, nil
}

func (r *plainRenderer) renderList(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.List)
	if entering {
		start := 0
		if n.IsOrdered() {
			start = n.Start
		}
		r.listCounter = append(r.listCounter, start)
	} else {
		r.listCounter = r.listCounter[:len(r.listCounter)-1]
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderListItem(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n")
		return ast.WalkContinue, nil
	}
	top := len(r.listCounter) - 1
	_, _ = w.WriteString(strings.Repeat("  ", top))
	if parent, ok := node.Parent().(*ast.List); ok && parent.IsOrdered() {
		_, _ = w.WriteString(strconv.Itoa(r.listCounter[top]) + ". ")
		r.listCounter[top]++
	} else {
		_, _ = w.WriteString("- ")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderTextBlock(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering && node.NextSibling() != nil {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Text)
	r.write(w, string(n.Segment.Value(source)))
	if n.SoftLineBreak() || n.HardLineBreak() {
		r.write(w, "\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderString(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.write(w, string(node.(*ast.String).Value))
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		r.write(w, string(node.(*ast.AutoLink).URL(source)))
	}
	return ast.WalkSkipChildren, nil
}

func (r *plainRenderer) renderRowEnd(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderCell(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering && node.NextSibling() != nil {
		_, _ = w.WriteString(" | ")
	}
	return ast.WalkContinue, nil
}
