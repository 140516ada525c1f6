package engine

import "strings"

// ForcedOverrideReason is appended when the fixed compliance denylist
// fires. The Spanish text is a regulatory artifact and must survive
// round-trips through downstream reporting unchanged.
const ForcedOverrideReason = "BLOQUEO FORZADO MCC"

// forcedKeywords is the fixed compliance denylist scanned against the MCC
// description. It is deliberately not part of the catalog: no catalog
// edit, allowlist entry or rule can disable or weaken it.
var forcedKeywords = []string{"BAR", "LOUNGE", "DISCO", "NIGHTCLUB", "TAVERN", "ALCOHOLIC"}

func forcedOverride(mccDescription string) bool {
	if mccDescription == "" {
		return false
	}
	upper := strings.ToUpper(mccDescription)
	for _, kw := range forcedKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
