package sat

import (
	"regexp"
	"strings"
)

// rfcPattern RFC de persona moral (3 letras) o física (4 letras) + fecha AAMMDD + homoclave.
var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{2}(0[1-9]|1[0-2])(0[1-9]|[12][0-9]|3[01])[A-Z0-9]{2}[0-9A]$`)

// NormalizeRFC quita espacios y guiones y pasa a mayúsculas.
func NormalizeRFC(rfc string) string {
	r := strings.ToUpper(strings.TrimSpace(rfc))
	r = strings.ReplaceAll(r, "-", "")
	return strings.ReplaceAll(r, " ", "")
}

// IsValidRFC valida el patrón del RFC (12 caracteres moral, 13 física).
// Los RFC genéricos XAXX010101000 y XEXX010101000 cumplen el patrón.
func IsValidRFC(rfc string) bool {
	return rfcPattern.MatchString(NormalizeRFC(rfc))
}

// IsGenericRFC indica si el RFC es uno de los genéricos del SAT.
func IsGenericRFC(rfc string) bool {
	r := NormalizeRFC(rfc)
	return r == RFCGenericNational || r == RFCGenericForeign
}

// IsLegalEntity indica si el RFC corresponde a persona moral (12 caracteres).
func IsLegalEntity(rfc string) bool {
	return len([]rune(NormalizeRFC(rfc))) == 12
}
