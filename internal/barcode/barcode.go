// Package barcode turns raw scanned or typed product codes into canonical codes
// that can be used as inventory deduplication keys.
package barcode

import (
	"strings"
)

// Kind identifies the symbology a canonical code was recognised as.
type Kind int

const (
	// KindUnrecognized is returned for input that is not a supported code.
	KindUnrecognized Kind = iota
	// KindISBN13 is a 978/979 prefixed book code.
	KindISBN13
	// KindUPCA is a bare 12 digit product code.
	KindUPCA
	// KindMagazine is a 977 prefixed periodical EAN-13, optionally followed by
	// its 2 or 5 digit add-on.
	KindMagazine
)

// String returns the tag used in logs and persisted records.
func (k Kind) String() string {
	switch k {
	case KindISBN13:
		return "isbn13"
	case KindUPCA:
		return "upca"
	case KindMagazine:
		return "magazine_ean13_addon"
	default:
		return "unrecognized"
	}
}

// Code is a normalized product code. The zero value is an unrecognized code.
type Code struct {
	Kind   Kind
	Digits string
}

// Valid reports whether the code was recognised.
func (c Code) Valid() bool {
	return c.Kind != KindUnrecognized && c.Digits != ""
}

// IsMagazine reports whether the code identifies a periodical issue.
func (c Code) IsMagazine() bool {
	return c.Kind == KindMagazine
}

// EAN13 returns the first 13 digits of the code, dropping a magazine add-on.
// Codes shorter than 13 digits are returned unchanged.
func (c Code) EAN13() string {
	if len(c.Digits) > 13 {
		return c.Digits[:13]
	}
	return c.Digits
}

// Addon returns the magazine add-on digits, or an empty string.
func (c Code) Addon() string {
	if c.Kind != KindMagazine || len(c.Digits) <= 13 {
		return ""
	}
	return c.Digits[13:]
}

// MatchKey returns the value an existing inventory record is matched on: the
// whole barcode (add-on included) for periodicals, the canonical digits
// otherwise.
func (c Code) MatchKey() string {
	return c.Digits
}

// String returns the canonical digits.
func (c Code) String() string {
	return c.Digits
}

const (
	prefixMagazine = "977"
	prefixBookland = "978"
	prefixMusic    = "979"
)

// Normalize canonicalizes a raw code. It never fails: input that cannot be
// recognised yields a Code with KindUnrecognized and the cleaned digits.
//
// Periodicals keep their add-on (15 or 18 digits) because the add-on carries the
// issue identity, while book codes with an add-on are trimmed to the ISBN-13.
func Normalize(raw string) Code {
	cleaned := clean(raw)

	if strings.ContainsRune(cleaned, 'X') {
		// X is only meaningful as the ISBN-10 check digit.
		if len(cleaned) != 10 || strings.IndexRune(cleaned, 'X') != 9 {
			return Code{Kind: KindUnrecognized, Digits: cleaned}
		}
	}

	switch len(cleaned) {
	case 18, 15:
		switch cleaned[:3] {
		case prefixMagazine:
			return Code{Kind: KindMagazine, Digits: cleaned}
		case prefixBookland, prefixMusic:
			cleaned = cleaned[:13]
		}
	case 10:
		cleaned = ISBN10To13(cleaned)
	}

	switch len(cleaned) {
	case 13:
		switch cleaned[:3] {
		case prefixBookland, prefixMusic:
			return Code{Kind: KindISBN13, Digits: cleaned}
		case prefixMagazine:
			return Code{Kind: KindMagazine, Digits: cleaned}
		}
	case 12:
		// UPC check digits are deliberately not validated.
		return Code{Kind: KindUPCA, Digits: cleaned}
	}

	return Code{Kind: KindUnrecognized, Digits: cleaned}
}

// clean keeps decimal digits and upper-cased X characters.
func clean(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == 'x' || r == 'X':
			sb.WriteRune('X')
		}
	}
	return sb.String()
}

// ISBN10To13 converts a 10 character ISBN to ISBN-13 by prefixing 978 to the
// first nine digits and recomputing the check digit. The original check digit
// is discarded without validation. Input of any other length is returned as is.
func ISBN10To13(isbn10 string) string {
	if len(isbn10) != 10 {
		return isbn10
	}
	body := prefixBookland + isbn10[:9]
	return body + string(rune('0'+ISBN13CheckDigit(body)))
}

// ISBN13CheckDigit computes the EAN-13 check digit for the first 12 digits of
// body using alternating 1/3 weights. Non-digit characters count as zero.
func ISBN13CheckDigit(body string) int {
	sum := 0
	for i := 0; i < 12 && i < len(body); i++ {
		d := int(body[i] - '0')
		if d < 0 || d > 9 {
			d = 0
		}
		if i%2 == 1 {
			d *= 3
		}
		sum += d
	}
	return (10 - sum%10) % 10
}

// ValidISBN13 reports whether s is a 13 digit code with a correct check digit.
func ValidISBN13(s string) bool {
	if len(s) != 13 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return int(s[12]-'0') == ISBN13CheckDigit(s)
}
