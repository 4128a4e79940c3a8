package csvscan

// DecodeField converts the raw bytes of a field slice, as they appear in the
// source between the first and last content byte, into the field's value:
// doubled quotes collapse to a single quote and leading/trailing ASCII
// whitespace is trimmed.
func DecodeField(raw []byte, quote byte) string {
	raw = TrimASCIISpace(raw)

	// Fast path: no quotes to collapse.
	hasQuote := false
	for _, c := range raw {
		if c == quote {
			hasQuote = true
			break
		}
	}
	if !hasQuote {
		return string(raw)
	}

	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		out = append(out, c)
		if c == quote && i+1 < len(raw) && raw[i+1] == quote {
			i++
		}
	}
	return string(out)
}

// TrimASCIISpace strips leading and trailing ASCII whitespace bytes. Unlike
// bytes.TrimSpace it never interprets multi-byte runes; the input is an
// opaque byte stream.
func TrimASCIISpace(b []byte) []byte {
	start := 0
	for start < len(b) && isASCIISpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isASCIISpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}

// IsBlankRow reports whether the raw bytes of a row contain only ASCII
// spaces and tabs. Such rows are dropped by the row indexer.
func IsBlankRow(b []byte) bool {
	for _, c := range b {
		if c != ' ' && c != '\t' {
			return false
		}
	}
	return true
}
