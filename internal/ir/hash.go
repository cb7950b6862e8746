package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for content-addressed invocation fingerprints. The version
// suffix allows a future algorithm change without colliding with old records.
const domainInvocation = "harvest/invocation/v1"

// hashWithDomain computes SHA-256 over domain + 0x00 + data. The null
// separator keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// InvocationFingerprint computes a content-addressed fingerprint for a tool
// invocation from its tool name and argument map. Two descriptors of the
// same tool with the same arguments hash identically, which is what the run
// log uses to correlate re-suggested invocations across rounds.
func InvocationFingerprint(tool string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"tool": tool,
		"args": args,
	})
	if err != nil {
		return "", fmt.Errorf("invocation fingerprint: %w", err)
	}
	return hashWithDomain(domainInvocation, canonical), nil
}

// MustInvocationFingerprint is like InvocationFingerprint but panics on
// error. Use only with inputs known to be canonicalizable.
func MustInvocationFingerprint(tool string, args map[string]any) string {
	fp, err := InvocationFingerprint(tool, args)
	if err != nil {
		panic(err)
	}
	return fp
}
