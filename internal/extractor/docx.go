package extractor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// WordToHTML converts a .docx package into intermediate semantic HTML:
// Title and Heading styles become h1..h6, bold/italic/underline runs become
// strong/em/u, numbered or bulleted paragraphs become list items and tables
// keep their row/cell structure. Nothing presentational is emitted.
func WordToHTML(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	return documentXMLToHTML(r.Editable().GetContent())
}

type runFormat struct {
	bold, italic, underline bool
}

type paragraph struct {
	style  string
	isList bool
	body   strings.Builder
}

// frame holds an enclosing paragraph while a text box paragraph nested in
// one of its runs is converted.
type frame struct {
	para  *paragraph
	run   runFormat
	inRun bool
	inRPr bool
}

type wordConverter struct {
	out    strings.Builder
	para   *paragraph
	outer  []frame
	run    runFormat
	runBuf strings.Builder
	inRun  bool
	inRPr  bool
	inText bool
	inList bool
}

func documentXMLToHTML(xmlStr string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(xmlStr))
	c := &wordConverter{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			c.start(t)
		case xml.EndElement:
			c.end(t)
		case xml.CharData:
			if c.inText && c.para != nil {
				c.runBuf.Write(t)
			}
		}
	}
	c.closeList()
	return strings.TrimSpace(c.out.String()), nil
}

func (c *wordConverter) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		if c.para != nil {
			c.flushRun()
			c.outer = append(c.outer, frame{para: c.para, run: c.run, inRun: c.inRun, inRPr: c.inRPr})
			c.inRun, c.inRPr = false, false
		}
		c.para = &paragraph{}
	case "pStyle":
		if c.para != nil {
			c.para.style = attr(t, "val")
		}
	case "numPr":
		if c.para != nil {
			c.para.isList = true
		}
	case "r":
		c.inRun = true
		c.run = runFormat{}
		c.runBuf.Reset()
	case "rPr":
		c.inRPr = c.inRun
	case "b":
		if c.inRPr {
			c.run.bold = toggleOn(t)
		}
	case "i":
		if c.inRPr {
			c.run.italic = toggleOn(t)
		}
	case "u":
		if c.inRPr {
			c.run.underline = attr(t, "val") != "none" && toggleOn(t)
		}
	case "t":
		c.inText = true
	case "tab":
		if c.inRun && !c.inRPr {
			c.runBuf.WriteString(" ")
		}
	case "br", "cr":
		if c.inRun && !c.inRPr {
			c.flushRun()
			if c.para != nil {
				c.para.body.WriteString("<br>")
			}
		}
	case "tbl":
		c.closeList()
		c.out.WriteString("<table>")
	case "tr":
		c.out.WriteString("<tr>")
	case "tc":
		c.out.WriteString("<td>")
	}
}

func (c *wordConverter) end(t xml.EndElement) {
	switch t.Name.Local {
	case "t":
		c.inText = false
	case "rPr":
		c.inRPr = false
	case "r":
		c.flushRun()
		c.inRun = false
	case "p":
		c.flushParagraph()
		if n := len(c.outer); n > 0 {
			f := c.outer[n-1]
			c.outer = c.outer[:n-1]
			c.para, c.run, c.inRun, c.inRPr = f.para, f.run, f.inRun, f.inRPr
		}
	case "tc":
		c.closeList()
		c.out.WriteString("</td>")
	case "tr":
		c.out.WriteString("</tr>")
	case "tbl":
		c.out.WriteString("</table>")
	}
}

func (c *wordConverter) flushRun() {
	if c.para == nil || c.runBuf.Len() == 0 {
		c.runBuf.Reset()
		return
	}
	text := html.EscapeString(c.runBuf.String())
	c.runBuf.Reset()

	if c.run.underline {
		text = "<u>" + text + "</u>"
	}
	if c.run.italic {
		text = "<em>" + text + "</em>"
	}
	if c.run.bold {
		text = "<strong>" + text + "</strong>"
	}
	c.para.body.WriteString(text)
}

func (c *wordConverter) flushParagraph() {
	p := c.para
	c.para = nil
	if p == nil {
		return
	}
	body := strings.TrimSpace(p.body.String())
	if body == "" {
		return
	}

	if level := docxHeadingLevel(p.style); level > 0 {
		c.closeList()
		class := ""
		if strings.EqualFold(p.style, "title") {
			class = ` class="document-title"`
		}
		fmt.Fprintf(&c.out, "<h%d%s>%s</h%d>", level, class, body, level)
		return
	}
	if p.isList || isListStyle(p.style) {
		if !c.inList {
			c.out.WriteString("<ul>")
			c.inList = true
		}
		fmt.Fprintf(&c.out, "<li>%s</li>", body)
		return
	}
	c.closeList()
	fmt.Fprintf(&c.out, "<p>%s</p>", body)
}

func (c *wordConverter) closeList() {
	if c.inList {
		c.out.WriteString("</ul>")
		c.inList = false
	}
}

// docxHeadingLevel maps a paragraph style id to a heading level, 0 when the
// style is not a heading ("Heading2" -> 2, "Title" -> 1).
func docxHeadingLevel(style string) int {
	lower := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		idx := strings.Index(lower, prefix)
		if idx < 0 {
			continue
		}
		rest := lower[idx+len(prefix):]
		if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
			return int(rest[0] - '0')
		}
	}
	return 0
}

func isListStyle(style string) bool {
	return strings.HasPrefix(strings.ToLower(style), "listparagraph") ||
		strings.HasPrefix(strings.ToLower(style), "listbullet") ||
		strings.HasPrefix(strings.ToLower(style), "listnumber")
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggleOn reads an OOXML on/off property: absent val or any value other
// than false/0/off means on.
func toggleOn(t xml.StartElement) bool {
	switch strings.ToLower(attr(t, "val")) {
	case "false", "0", "off":
		return false
	}
	return true
}
