package catalog

import (
	"regexp"
	"strconv"
	"strings"
)

// sizeCodeNames maps the retailer's display codes to human size labels.
var sizeCodeNames = map[string]string{
	// Standard apparel sizes
	"00":  "FREE SIZE",
	"001": "XXS",
	"002": "XS",
	"003": "S",
	"004": "M",
	"005": "L",
	"006": "XL",
	"007": "XXL",
	"008": "XXXL",
	"009": "4XL",
	"010": "5XL",
	// Inch sizes (pants/jeans)
	"027": `27"`,
	"028": `28"`,
	"029": `29"`,
	"030": `30"`,
	"031": `31"`,
	"032": `32"`,
	"033": `33"`,
	"034": `34"`,
	"035": `35"`,
	"036": `36"`,
	"037": `37"`,
	"038": `38"`,
	"040": `40"`,
	"042": `42"`,
	// Kids sizes
	"100": "100cm",
	"110": "110cm",
	"120": "120cm",
	"130": "130cm",
	"140": "140cm",
	"150": "150cm",
	"160": "160cm",
}

var trailingDigitsRe = regexp.MustCompile(`(\d{2,3})$`)

// normalizeSizeCode prefers the display code; full codes like "INS027"
// fall back to their trailing digits.
func normalizeSizeCode(displayCode, sizeCode string) string {
	if displayCode != "" {
		return displayCode
	}
	if m := trailingDigitsRe.FindStringSubmatch(sizeCode); m != nil {
		return m[1]
	}
	return sizeCode
}

// SizeName resolves a size code to its human label, falling back to the
// code itself for unmapped values.
func SizeName(code string) string {
	if name, ok := sizeCodeNames[code]; ok {
		return name
	}
	return code
}

// sizeRank orders labels the way a size run reads on a rack:
// FREE SIZE first, then letter sizes, then numeric (inch/cm) ascending.
var sizeRank = map[string]int{
	"FREE SIZE": 0,
	"XXS":       1,
	"XS":        2,
	"S":         3,
	"M":         4,
	"L":         5,
	"XL":        6,
	"XXL":       7,
	"XXXL":      8,
	"4XL":       9,
	"5XL":       10,
}

// SizeSortKey returns a sortable rank for a size label.
func SizeSortKey(name string) int {
	if r, ok := sizeRank[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return r
	}
	digits := strings.TrimRight(strings.TrimSuffix(strings.TrimSpace(name), "cm"), `"`)
	if n, err := strconv.Atoi(digits); err == nil {
		return 100 + n
	}
	return 1000
}
