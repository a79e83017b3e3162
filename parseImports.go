package main

func isWhiteSpace(char byte) bool {
	return (char == ' ' || char == '\t' || char == '\n' || char == '\r')
}

// skipSpaces skips spaces, tabs, and newlines, returns new index
func skipSpaces(code []byte, i int) int {
	for i < len(code) && isWhiteSpace(code[i]) {
		i++
	}
	return i
}

func isByteIdentifierChar(char byte) bool {
	// 0-9 || A-Z || a-z || _ || $
	return (char >= 48 && char <= 57) || (char >= 65 && char <= 90) || (char >= 97 && char <= 122) || char == 95 || char == '$'
}

func hasPrefixAt(code []byte, i int, s string) bool {
	if i < 0 || i+len(s) > len(code) {
		return false
	}
	for j := 0; j < len(s); j++ {
		if code[i+j] != s[j] {
			return false
		}
	}
	return true
}

// hasKeywordAt reports whether s occurs at i as a whole word that is not a
// property access (`a.import`).
func hasKeywordAt(code []byte, i int, s string) bool {
	if !hasPrefixAt(code, i, s) {
		return false
	}
	if i > 0 && (isByteIdentifierChar(code[i-1]) || code[i-1] == '.') {
		return false
	}
	end := i + len(s)
	return end >= len(code) || !isByteIdentifierChar(code[end])
}

// skipToStringEnd returns the index of the closing quote of the literal
// opened at start.
func skipToStringEnd(code []byte, start int, quote byte) int {
	i := start + 1
	for i < len(code) {
		if code[i] == quote {
			return i
		}
		if code[i] == '\\' && i+1 < len(code) {
			i += 2
		} else {
			i++
		}
	}
	return i
}

func skipLineComment(code []byte, start int) int {
	i := start + 2
	for i < len(code) && code[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(code []byte, start int) int {
	i := start + 2
	for i+1 < len(code) && !(code[i] == '*' && code[i+1] == '/') {
		i++
	}
	if i+1 < len(code) {
		i += 2
	}
	return i
}

// skipSpacesAndComments skips whitespace, line comments, and block comments
func skipSpacesAndComments(code []byte, i int) int {
	n := len(code)
	for i < n {
		i = skipSpaces(code, i)
		if i+1 < n && code[i] == '/' && code[i+1] == '/' {
			i = skipLineComment(code, i)
			continue
		}
		if i+1 < n && code[i] == '/' && code[i+1] == '*' {
			i = skipBlockComment(code, i)
			continue
		}
		break
	}
	return i
}

// readStringLiteral returns the raw contents of the quoted literal at i and
// the index after its closing quote. ok is false when i is not at a quote.
func readStringLiteral(code []byte, i int) (value string, next int, ok bool) {
	if i >= len(code) || (code[i] != '"' && code[i] != '\'' && code[i] != '`') {
		return "", i, false
	}
	end := skipToStringEnd(code, i, code[i])
	if end >= len(code) {
		return "", end, false
	}
	return string(code[i+1 : end]), end + 1, true
}

// scanModuleRequests collects module identifiers that appear as the source
// of a static import, a re-export, or a dynamic import() with a literal
// argument. It does not track strings, comments, regular expressions or JSX
// text: every `import` and `from` keyword is looked at, wherever it is. The
// result may over-report but never misses a request written as a literal.
func scanModuleRequests(code []byte) []string {
	requests := make([]string, 0, 8)
	n := len(code)
	i := 0
	for i < n {
		var j int
		switch {
		case code[i] == 'i' && hasKeywordAt(code, i, "import"):
			j = skipSpacesAndComments(code, i+len("import"))
			if j < n && code[j] == '(' {
				j = skipSpacesAndComments(code, j+1)
			}
		case code[i] == 'f' && hasKeywordAt(code, i, "from"):
			j = skipSpacesAndComments(code, i+len("from"))
		default:
			i++
			continue
		}
		if request, next, ok := readStringLiteral(code, j); ok {
			requests = append(requests, request)
			i = next
			continue
		}
		i = j
	}
	return requests
}
