package pyscan

import (
	"fmt"
	"strings"
)

// SyntaxError describes source the interpreter would refuse to import.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// logicalLine is one Python statement line after joining continuations.
// String literals are collapsed to "" and comments removed.
type logicalLine struct {
	indent int
	text   string
	line   int
}

var closers = map[byte]byte{')': '(', ']': '[', '}': '{'}

type opener struct {
	char byte
	line int
}

// splitLogical tokenizes just enough Python to find statement boundaries,
// indentation and bracket balance.
func splitLogical(src []byte) ([]logicalLine, error) {
	var (
		lines   []logicalLine
		buf     strings.Builder
		stack   []opener
		lineNo  = 1
		start   = 1
		indent  = 0
		atStart = true
	)

	emit := func() {
		text := strings.TrimSpace(buf.String())
		if text != "" {
			lines = append(lines, logicalLine{indent: indent, text: text, line: start})
		}
		buf.Reset()
		atStart = true
	}

	n := len(src)
	i := 0
	for i < n {
		if atStart {
			col := 0
			j := i
			for j < n && (src[j] == ' ' || src[j] == '\t' || src[j] == '\f') {
				if src[j] == '\t' {
					col = (col/8 + 1) * 8
				} else if src[j] == ' ' {
					col++
				}
				j++
			}
			if j >= n {
				break
			}
			switch src[j] {
			case '\r':
				i = j + 1
				continue
			case '\n':
				lineNo++
				i = j + 1
				continue
			case '#':
				for j < n && src[j] != '\n' {
					j++
				}
				i = j
				continue
			}
			indent = col
			start = lineNo
			atStart = false
			i = j
		}

		c := src[i]
		switch {
		case c == '#':
			for i < n && src[i] != '\n' {
				i++
			}
			continue

		case c == '\\' && i+1 < n && (src[i+1] == '\n' || src[i+1] == '\r'):
			i++
			if src[i] == '\r' && i+1 < n && src[i+1] == '\n' {
				i++
			}
			lineNo++
			buf.WriteByte(' ')
			i++
			continue

		case c == '\'' || c == '"':
			end, newlines, err := skipString(src, i, lineNo)
			if err != nil {
				return nil, err
			}
			lineNo += newlines
			buf.WriteString(`""`)
			i = end
			continue

		case c == '(' || c == '[' || c == '{':
			stack = append(stack, opener{char: c, line: lineNo})
			buf.WriteByte(c)

		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 {
				return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("unmatched '%c'", c)}
			}
			top := stack[len(stack)-1]
			if top.char != closers[c] {
				return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("closing parenthesis '%c' does not match opening parenthesis '%c' on line %d", c, top.char, top.line)}
			}
			stack = stack[:len(stack)-1]
			buf.WriteByte(c)

		case c == '\r':
			// handled with the following \n

		case c == '\n':
			lineNo++
			if len(stack) > 0 {
				buf.WriteByte(' ')
			} else {
				emit()
			}

		default:
			buf.WriteByte(c)
		}
		i++
	}

	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return nil, &SyntaxError{Line: top.line, Msg: fmt.Sprintf("'%c' was never closed", top.char)}
	}
	emit()
	return lines, nil
}

// skipString returns the index just past the literal starting at src[i], and
// how many newlines it spans.
func skipString(src []byte, i, lineNo int) (int, int, error) {
	n := len(src)
	q := src[i]
	triple := i+2 < n && src[i+1] == q && src[i+2] == q
	newlines := 0

	if triple {
		j := i + 3
		for j < n {
			switch {
			case src[j] == '\\':
				if j+1 < n && src[j+1] == '\n' {
					newlines++
				}
				j += 2
				continue
			case src[j] == '\n':
				newlines++
			case src[j] == q && j+2 < n && src[j+1] == q && src[j+2] == q:
				return j + 3, newlines, nil
			}
			j++
		}
		return 0, 0, &SyntaxError{Line: lineNo, Msg: "unterminated triple-quoted string literal"}
	}

	j := i + 1
	for j < n {
		switch src[j] {
		case '\\':
			if j+1 < n && src[j+1] == '\n' {
				newlines++
			}
			j += 2
			continue
		case '\n':
			return 0, 0, &SyntaxError{Line: lineNo + newlines, Msg: "unterminated string literal"}
		case q:
			return j + 1, newlines, nil
		}
		j++
	}
	return 0, 0, &SyntaxError{Line: lineNo + newlines, Msg: "unterminated string literal"}
}

// checkIndentation applies the interpreter's block rules to logical lines.
func checkIndentation(lines []logicalLine) error {
	levels := []int{0}
	opensBlock := false
	lastHeader := 0

	for _, l := range lines {
		top := levels[len(levels)-1]
		switch {
		case opensBlock:
			if l.indent <= top {
				return &SyntaxError{Line: l.line, Msg: fmt.Sprintf("expected an indented block after line %d", lastHeader)}
			}
			levels = append(levels, l.indent)
		case l.indent > top:
			return &SyntaxError{Line: l.line, Msg: "unexpected indent"}
		case l.indent < top:
			for len(levels) > 1 && levels[len(levels)-1] > l.indent {
				levels = levels[:len(levels)-1]
			}
			if levels[len(levels)-1] != l.indent {
				return &SyntaxError{Line: l.line, Msg: "unindent does not match any outer indentation level"}
			}
		}
		opensBlock = strings.HasSuffix(l.text, ":")
		if opensBlock {
			lastHeader = l.line
		}
	}

	if opensBlock {
		return &SyntaxError{Line: lastHeader, Msg: fmt.Sprintf("expected an indented block after line %d", lastHeader)}
	}
	return nil
}
