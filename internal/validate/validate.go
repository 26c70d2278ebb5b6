// Package validate holds structural checks for well-known token formats.
// A passing check raises confidence; a failing one never suppresses.
package validate

import (
	"encoding/base64"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	base62     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Check validates a matched value.
type Check func(s string) bool

// byRule maps built-in rule IDs to their shape check.
var byRule = map[string]Check{
	"aws-access-key-id":     LooksLikeAWSAccessKey,
	"aws-secret-access-key": LooksLikeAWSSecretKey,
	"github-token":          LooksLikeGitHubToken,
	"openai-api-key":        LooksLikeOpenAIKey,
	"jwt":                   IsJWT,
}

// ForRule returns the shape check registered for a rule ID.
func ForRule(id string) (Check, bool) {
	c, ok := byRule[id]
	return c, ok
}

// IsAlphabet returns true if all characters in s are in allowed set.
func IsAlphabet(s, allowed string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(allowed, rune(s[i])) {
			return false
		}
	}
	return true
}

// IsBase64URLNoPad reports whether s is valid unpadded base64url.
func IsBase64URLNoPad(s string) bool {
	if s == "" {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}

// LooksLikeGitHubToken accepts ghp_, gho_, ghu_, ghs_, ghr_ followed by 36 base62 chars.
func LooksLikeGitHubToken(s string) bool {
	if len(s) != 40 || !strings.HasPrefix(s, "gh") || s[3] != '_' || !strings.ContainsRune("pousr", rune(s[2])) {
		return false
	}
	return IsAlphabet(s[4:], base62)
}

// LooksLikeOpenAIKey checks the sk- prefix and a base62 tail of plausible length.
func LooksLikeOpenAIKey(s string) bool {
	tail, ok := strings.CutPrefix(s, "sk-")
	if !ok {
		return false
	}
	tail = strings.TrimPrefix(tail, "proj-")
	if len(tail) < 40 || len(tail) > 200 {
		return false
	}
	return IsAlphabet(strings.NewReplacer("-", "", "_", "").Replace(tail), base62)
}

// LooksLikeAWSAccessKey checks for a known prefix plus 16 uppercase alnum.
func LooksLikeAWSAccessKey(s string) bool {
	if len(s) != 20 {
		return false
	}
	switch s[:4] {
	case "AKIA", "ASIA", "ABIA", "ACCA":
	default:
		return false
	}
	return IsAlphabet(s[4:], upperAlnum)
}

// LooksLikeAWSSecretKey checks a base64-like alphabet and exact length 40.
func LooksLikeAWSSecretKey(s string) bool {
	if len(s) != 40 {
		return false
	}
	return IsAlphabet(s, base62+"+/=")
}

// IsJWT reports whether s decodes as a JWT with a JSON header and claims.
// The signature is not verified.
func IsJWT(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || !IsBase64URLNoPad(parts[0]) || !IsBase64URLNoPad(parts[1]) {
		return false
	}
	tok, _, err := jwt.NewParser().ParseUnverified(s, jwt.MapClaims{})
	if err != nil {
		return false
	}
	_, hasAlg := tok.Header["alg"]
	return hasAlg
}
