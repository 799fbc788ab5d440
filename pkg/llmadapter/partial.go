package llmadapter

// PartialAnswerExtractor scans a cumulative JSON buffer for the
// "answer_markdown":" field and extracts the string value accumulated so
// far, honouring backslash escapes, without waiting for the field (or the
// enclosing JSON) to close.
//
// Feed it the full cumulative buffer on every chunk; call Delta to get just
// the newly-revealed suffix to emit as the user-visible token.
type PartialAnswerExtractor struct {
	fieldFound  bool
	fieldStart  int // index into the buffer right after the opening quote
	lastValue   string
}

const fieldMarker = `"answer_markdown":"`

// Feed processes the latest cumulative buffer and returns the full decoded
// value extracted so far (not just the delta).
func (p *PartialAnswerExtractor) Feed(buffer string) string {
	if !p.fieldFound {
		idx := indexOfField(buffer)
		if idx < 0 {
			return p.lastValue
		}
		p.fieldFound = true
		p.fieldStart = idx
	}

	value, _ := decodePartialString(buffer[p.fieldStart:])
	p.lastValue = value
	return value
}

// Delta processes buffer and returns only the newly-revealed suffix since
// the previous call to Feed/Delta.
func (p *PartialAnswerExtractor) Delta(buffer string) string {
	prev := p.lastValue
	full := p.Feed(buffer)
	if len(full) <= len(prev) {
		return ""
	}
	return full[len(prev):]
}

func indexOfField(buffer string) int {
	for i := 0; i+len(fieldMarker) <= len(buffer); i++ {
		if buffer[i:i+len(fieldMarker)] == fieldMarker {
			return i + len(fieldMarker)
		}
	}
	return -1
}

// decodePartialString walks s (the content starting right after the opening
// quote of a JSON string) honouring backslash escapes, until it finds the
// first unescaped closing quote or runs out of input. It returns the
// decoded string and whether the string was terminated (closing quote
// found).
func decodePartialString(s string) (string, bool) {
	var out []byte
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '"' {
			return string(out), true
		}
		if c == '\\' {
			if i+1 >= len(s) {
				// Escape started but not enough buffer yet to resolve it;
				// stop before the incomplete escape rather than guess.
				break
			}
			next := s[i+1]
			switch next {
			case '"':
				out = append(out, '"')
			case '\\':
				out = append(out, '\\')
			case '/':
				out = append(out, '/')
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case 'u':
				if i+6 <= len(s) {
					r, ok := decodeUnicodeEscape(s[i+2 : i+6])
					if ok {
						out = appendRune(out, r)
						i += 6
						continue
					}
				}
				// Incomplete \u escape: stop here, wait for more input.
				return string(out), false
			default:
				out = append(out, next)
			}
			i += 2
			continue
		}
		out = append(out, c)
		i++
	}
	return string(out), false
}

func decodeUnicodeEscape(hex string) (rune, bool) {
	var r rune
	for _, c := range hex {
		r <<= 4
		switch {
		case c >= '0' && c <= '9':
			r |= rune(c - '0')
		case c >= 'a' && c <= 'f':
			r |= rune(c-'a') + 10
		case c >= 'A' && c <= 'F':
			r |= rune(c-'A') + 10
		default:
			return 0, false
		}
	}
	return r, true
}

func appendRune(b []byte, r rune) []byte {
	buf := make([]byte, 4)
	n := copy(buf, string(r))
	return append(b, buf[:n]...)
}
