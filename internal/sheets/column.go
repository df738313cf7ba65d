package sheets

import "strings"

// ColumnLetter converts a 1-based column number to its A1-notation letters:
// 1 -> A, 2 -> B, 26 -> Z, 27 -> AA. Day-of-month cells live at column
// day+1, so day 1 is column B and day 26 is column AA.
func ColumnLetter(n int) string {
	if n < 1 {
		return ""
	}

	var b strings.Builder
	for n > 0 {
		n--
		b.WriteByte(byte('A' + n%26))
		n /= 26
	}

	// Digits came out least-significant first.
	s := []byte(b.String())
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return string(s)
}

// mergeCellEntry folds a "HH:MM <type>" entry into a cell's existing
// newline-joined entries. An entry of the same type is replaced in place so
// re-punching the same type on the same day stays idempotent; otherwise the
// new entry is appended.
func mergeCellEntry(existing, entry, typeName string) string {
	if strings.TrimSpace(existing) == "" {
		return entry
	}

	lines := strings.Split(existing, "\n")
	replaced := false
	for i, line := range lines {
		if entryTypeName(line) == typeName {
			lines[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, entry)
	}
	return strings.Join(lines, "\n")
}

// entryTypeName returns the type portion of a "HH:MM <type>" cell entry.
func entryTypeName(line string) string {
	_, typ, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return ""
	}
	return typ
}
