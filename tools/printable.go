package tools

import "unicode"

type printableType interface {
	~string | ~[]rune | ~[]byte
}

// IsPrintable strips non-printable runes from v, for logging binary
// protocol payloads.
func IsPrintable[T printableType](v T) string {
	var result []rune
	appendPrintable := func(r rune) {
		if unicode.IsPrint(r) {
			result = append(result, r)
		}
	}
	switch v := any(v).(type) {
	case string:
		for _, r := range v {
			appendPrintable(r)
		}
	case []rune:
		for _, r := range v {
			appendPrintable(r)
		}
	case []byte:
		for _, b := range v {
			appendPrintable(rune(b))
		}
	}
	return string(result)
}
