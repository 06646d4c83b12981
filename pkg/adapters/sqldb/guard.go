package sqldb

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNotReadOnly is returned for statements that could modify data.
var ErrNotReadOnly = errors.New("only read-only statements are allowed")

var (
	readOnlyStart = regexp.MustCompile(`(?i)^\s*(select|with|show|explain|describe|desc|values)\b`)
	writeKeyword  = regexp.MustCompile(`(?i)\b(insert|update|delete|merge|drop|alter|create|truncate|grant|revoke|attach|detach|pragma|copy|call)\b`)
)

// EnsureReadOnly rejects anything but a single read-only statement.
// Literals and comments are stripped before matching keywords.
func EnsureReadOnly(sql string) error {
	stripped := stripLiterals(sql)
	body := strings.TrimRight(strings.TrimSpace(stripped), "; \t\n")
	if body == "" {
		return errors.New("empty statement")
	}
	if strings.Contains(body, ";") {
		return ErrNotReadOnly
	}
	if !readOnlyStart.MatchString(body) || writeKeyword.MatchString(body) {
		return ErrNotReadOnly
	}
	return nil
}

// stripLiterals blanks quoted strings, identifiers and comments.
func stripLiterals(s string) string {
	var sb strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\'' || r == '"' || r == '`':
			j := i + 1
			for j < len(rs) {
				if rs[j] == r {
					if j+1 < len(rs) && rs[j+1] == r {
						j += 2
						continue
					}
					break
				}
				j++
			}
			sb.WriteString(" x ")
			i = j
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			sb.WriteRune(' ')
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			i += 2
			for i+1 < len(rs) && !(rs[i] == '*' && rs[i+1] == '/') {
				i++
			}
			i++
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
