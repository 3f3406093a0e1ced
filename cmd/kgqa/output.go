package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/render"
)

// Output formats of --format.
const (
	formatText     = "text"
	formatJSON     = "json"
	formatHTML     = "html"
	formatMarkdown = "markdown"
)

var outputFormats = []string{formatText, formatJSON, formatHTML, formatMarkdown}

func validFormat(f string) error {
	for _, v := range outputFormats {
		if f == v {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q (expected one of %s)", f, strings.Join(outputFormats, ", "))
}

// writeRecord prints rec in the requested format.
func writeRecord(out io.Writer, rec *pipeline.AnswerRecord, kind string) error {
	switch kind {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case formatHTML:
		return render.Page(out, rec)
	case formatMarkdown:
		_, err := io.WriteString(out, render.Markdown(rec))
		return err
	default:
		writeText(out, rec)
		return nil
	}
}

func writeText(out io.Writer, rec *pipeline.AnswerRecord) {
	m := messagesFor(rec.Language)
	if !rec.Success {
		fmt.Fprintln(out, errStyle.Render(fmt.Sprintf("%s: %s", m.failed, rec.Error)))
		return
	}
	fmt.Fprintln(out, titleStyle.Render(m.finalAnswer+":"))
	fmt.Fprintln(out, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(out, rec.Answer)
	fmt.Fprintln(out, strings.Repeat("=", ruleWidth))
	fmt.Fprintln(out)
}
