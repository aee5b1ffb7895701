package validate

import (
	"fmt"
	"sort"
)

type bracket struct {
	ch   byte
	line int
}

const tabSize = 8

// checkSource tokenizes one Python source just far enough to catch
// structural mistakes: unterminated strings, unbalanced brackets and
// broken indentation. Issues carry the line they belong to; the caller
// fills in the file name.
func checkSource(src []byte) []Issue {
	var issues []Issue
	var stack []bracket

	line := 1
	indents := []int{0}

	inStr := false
	var strQuote byte
	strTriple := false
	strStart := 0

	atLineStart := true
	contLine := false
	width := 0
	sawSpace := false
	flaggedMix := false

	add := func(ln int, msg string) {
		issues = append(issues, Issue{Line: ln, Message: msg})
	}
	resetLine := func() {
		atLineStart = true
		width = 0
		sawSpace = false
		flaggedMix = false
	}

	i := 0
	n := len(src)
	for i < n {
		c := src[i]

		if inStr {
			switch {
			case c == '\\':
				if i+2 < n && src[i+1] == '\r' && src[i+2] == '\n' {
					line++
					i += 3
					continue
				}
				if i+1 < n && src[i+1] == '\n' {
					line++
				}
				i += 2
			case strTriple && c == strQuote && i+2 < n && src[i+1] == strQuote && src[i+2] == strQuote:
				inStr = false
				i += 3
			case strTriple && c == '\n':
				line++
				i++
			case !strTriple && c == strQuote:
				inStr = false
				i++
			case !strTriple && c == '\n':
				add(strStart, "unterminated string literal")
				inStr = false
				line++
				resetLine()
				contLine = false
				i++
			default:
				i++
			}
			continue
		}

		if atLineStart {
			if c == ' ' || c == '\t' {
				if c == '\t' {
					if sawSpace && !flaggedMix {
						add(line, "inconsistent use of tabs and spaces in indentation")
						flaggedMix = true
					}
					width += tabSize - width%tabSize
				} else {
					width++
					sawSpace = true
				}
				i++
				continue
			}
			atLineStart = false
			// indentation is significant only for fresh logical lines
			if len(stack) == 0 && !contLine && c != '\n' && c != '\r' && c != '#' {
				top := indents[len(indents)-1]
				switch {
				case width > top:
					indents = append(indents, width)
				case width < top:
					for len(indents) > 1 && indents[len(indents)-1] > width {
						indents = indents[:len(indents)-1]
					}
					if indents[len(indents)-1] != width {
						add(line, "unindent does not match any outer indentation level")
						indents = append(indents, width)
					}
				}
			}
			if c != '\n' && c != '\r' && c != '#' {
				contLine = false
			}
		}

		switch c {
		case '#':
			for i < n && src[i] != '\n' {
				i++
			}
		case '\n':
			line++
			resetLine()
			contLine = false
			i++
		case '\\':
			if i+1 < n && src[i+1] == '\n' {
				line++
				resetLine()
				contLine = true
				i += 2
			} else if i+2 < n && src[i+1] == '\r' && src[i+2] == '\n' {
				line++
				resetLine()
				contLine = true
				i += 3
			} else {
				i++
			}
		case '\'', '"':
			strQuote = c
			strStart = line
			inStr = true
			if i+2 < n && src[i+1] == c && src[i+2] == c {
				strTriple = true
				i += 3
			} else {
				strTriple = false
				i++
			}
		case '(', '[', '{':
			stack = append(stack, bracket{c, line})
			i++
		case ')', ']', '}':
			if len(stack) == 0 {
				add(line, fmt.Sprintf("unmatched '%c'", c))
			} else {
				open := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if closerFor(open.ch) != c {
					add(line, fmt.Sprintf("closing '%c' does not match opening '%c' on line %d", c, open.ch, open.line))
				}
			}
			i++
		default:
			i++
		}
	}

	if inStr {
		if strTriple {
			add(strStart, "unterminated triple-quoted string literal")
		} else {
			add(strStart, "unterminated string literal")
		}
	}
	for _, b := range stack {
		add(b.line, fmt.Sprintf("'%c' was never closed", b.ch))
	}

	sort.SliceStable(issues, func(a, b int) bool { return issues[a].Line < issues[b].Line })
	return issues
}

func closerFor(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}
