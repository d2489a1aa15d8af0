/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package expression

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

var (
	errUnterminatedString = errors.New("unterminated string literal")
	errDanglingLike       = errors.New("like needs an operand on both sides")
)

type tokenKind int

const (
	tokenOperand tokenKind = iota
	tokenOperator
	tokenOpen
	tokenClose
)

type token struct {
	kind tokenKind
	text string
}

// rewrite turns a formula into HCL native syntax. String literals are
// lowercased so comparisons against lowercased titles ignore case.
func rewrite(source string) (string, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return "", err
	}

	out := make([]token, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.kind == tokenOperator && t.text == "like" {
			if len(out) == 0 || out[len(out)-1].kind != tokenOperand || i+1 >= len(tokens) || tokens[i+1].kind != tokenOperand {
				return "", errDanglingLike
			}
			lhs := out[len(out)-1]
			out[len(out)-1] = token{kind: tokenOperand, text: "like(" + lhs.text + ", " + tokens[i+1].text + ")"}
			i++
			continue
		}
		out = append(out, t)
	}

	parts := make([]string, len(out))
	for i, t := range out {
		parts[i] = t.text
	}
	return strings.Join(parts, " "), nil
}

func tokenize(source string) ([]token, error) {
	var tokens []token
	runes := []rune(source)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != r {
				end++
			}
			if end >= len(runes) {
				return nil, errUnterminatedString
			}
			literal := strings.ToLower(string(runes[i+1 : end]))
			tokens = append(tokens, token{kind: tokenOperand, text: quote(literal)})
			i = end + 1
		case r == '(':
			tokens = append(tokens, token{kind: tokenOpen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokenClose, text: ")"})
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			end := i
			for end < len(runes) && (unicode.IsDigit(runes[end]) || runes[end] == '.') {
				end++
			}
			tokens = append(tokens, token{kind: tokenOperand, text: string(runes[i:end])})
			i = end
		case unicode.IsLetter(r) || r == '_':
			end := i
			for end < len(runes) && (unicode.IsLetter(runes[end]) || unicode.IsDigit(runes[end]) || runes[end] == '_') {
				end++
			}
			word := string(runes[i:end])
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{kind: tokenOperator, text: "&&"})
			case "or":
				tokens = append(tokens, token{kind: tokenOperator, text: "||"})
			case "not":
				tokens = append(tokens, token{kind: tokenOperator, text: "!"})
			case "like":
				tokens = append(tokens, token{kind: tokenOperator, text: "like"})
			case "true", "false":
				tokens = append(tokens, token{kind: tokenOperand, text: strings.ToLower(word)})
			default:
				tokens = append(tokens, token{kind: tokenOperand, text: word})
			}
			i = end
		default:
			op, n := operator(runes[i:])
			tokens = append(tokens, token{kind: tokenOperator, text: op})
			i += n
		}
	}
	return tokens, nil
}

// operator reads a symbolic operator, translating "=" and "<>".
func operator(runes []rune) (string, int) {
	if len(runes) >= 2 {
		switch string(runes[:2]) {
		case "==", "!=", "<=", ">=", "&&", "||":
			return string(runes[:2]), 2
		case "<>":
			return "!=", 2
		}
	}
	if runes[0] == '=' {
		return "==", 1
	}
	return string(runes[0]), 1
}

// quote renders a literal as an HCL string with template sequences escaped.
func quote(literal string) string {
	q := strconv.Quote(literal)
	q = strings.ReplaceAll(q, "${", "$${")
	return strings.ReplaceAll(q, "%{", "%%{")
}
