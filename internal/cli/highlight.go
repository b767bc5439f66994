package cli

import (
	"io"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/fatih/color"
)

// writeHighlighted prints source through a terminal formatter, falling back
// to plain text when color is off or the lexer cannot tokenise it.
func writeHighlighted(w io.Writer, source, lexerName string) error {
	if color.NoColor {
		_, err := io.WriteString(w, source)
		return err
	}
	lexer := lexers.Get(lexerName)
	if lexer == nil {
		lexer = lexers.Match(lexerName)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		_, err = io.WriteString(w, source)
		return err
	}
	return formatter.Format(w, style, iterator)
}
