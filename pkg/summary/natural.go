package summary

import "strings"

// NaturalLess compares a and b case-insensitively, treating runs of
// digits as numbers so "2.3" sorts before "2.10". Numeric runs sort
// before text.
func NaturalLess(a, b string) bool {
	return naturalCompare(a, b) < 0
}

func naturalCompare(a, b string) int {
	ca, cb := chunks(strings.ToLower(a)), chunks(strings.ToLower(b))
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		switch {
		case x.numeric && y.numeric:
			if c := compareDigits(x.text, y.text); c != 0 {
				return c
			}
		case x.numeric:
			return -1
		case y.numeric:
			return 1
		default:
			if c := strings.Compare(x.text, y.text); c != 0 {
				return c
			}
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	}
	return strings.Compare(a, b)
}

type chunk struct {
	text    string
	numeric bool
}

func chunks(s string) []chunk {
	var out []chunk
	start := 0
	runes := []rune(s)
	for i := 1; i <= len(runes); i++ {
		if i == len(runes) || isDigit(runes[i]) != isDigit(runes[start]) {
			out = append(out, chunk{text: string(runes[start:i]), numeric: isDigit(runes[start])})
			start = i
		}
	}
	return out
}

// compareDigits compares two digit strings by value without overflow.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
