package registry

import (
	"strings"

	"github.com/asaskevich/govalidator"
)

// Pure predicates shared by the advisory creation-time checks and the
// authoritative execution-time checks, so both call sites agree.

func validateThreshold(threshold, adminCount int) bool {
	return threshold > 0 && threshold <= adminCount
}

func isDuplicateAdmin(cfg *Config, admin string) bool {
	return cfg.IsAdmin(admin)
}

func isLastAdmin(cfg *Config) bool {
	return len(cfg.Admins) <= 1
}

// isPrincipal reports whether s looks like an identity handle issued by
// the auth verifier. Principals are UUIDs.
func isPrincipal(s string) bool {
	return govalidator.IsUUID(s)
}

// isWellFormedAddress checks the payout address shape only; ownership is
// the ledger's concern.
func isWellFormedAddress(addr string) bool {
	return addr != "" && len(addr) <= 128 && govalidator.IsPrintableASCII(addr)
}

// isWellFormedCID accepts CIDv1 base32 identifiers.
func isWellFormedCID(cid string) bool {
	return len(cid) >= 46 && strings.HasPrefix(cid, "b")
}
