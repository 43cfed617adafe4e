package customer

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var ibanFormat = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]{1,30}$`)

// ValidateIBAN checks structural shape and the BBAN mod-97 checksum
// (ISO 7064 MOD 97-10), the same algorithm any IBAN library implements;
// no such library exists in the retrieval pack, see DESIGN.md.
func ValidateIBAN(iban string) (countryCode string, compact string, err error) {
	compact = strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if !ibanFormat.MatchString(compact) {
		return "", "", fmt.Errorf("iban %q has an invalid structure", iban)
	}

	rearranged := compact[4:] + compact[:4]
	var numeric strings.Builder
	for _, r := range rearranged {
		if r >= '0' && r <= '9' {
			numeric.WriteRune(r)
		} else {
			numeric.WriteString(fmt.Sprintf("%d", r-'A'+10))
		}
	}

	n := new(big.Int)
	if _, ok := n.SetString(numeric.String(), 10); !ok {
		return "", "", fmt.Errorf("iban %q could not be converted for checksum validation", iban)
	}
	remainder := new(big.Int).Mod(n, big.NewInt(97))
	if remainder.Int64() != 1 {
		return "", "", fmt.Errorf("iban %q fails the mod-97 checksum", iban)
	}

	return compact[:2], compact, nil
}
