// Package challenge defeats the marketplace's proof-of-work bot check.
//
// A blocked session carries a state cookie whose value encodes an opaque
// token and a difficulty. Proving non-automated behavior means finding a
// nonce whose SHA-256 digest of token+nonce starts with that many zero hex
// digits, and presenting it back in a solution cookie. The search is pure
// CPU with a hard nonce bound; cookie-jar mutation is its only side effect.
package challenge

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// StateCookieName is set by the anti-bot interstitial.
	StateCookieName = "_bmstate"
	// SolutionCookieName carries the solved token;nonce pair.
	SolutionCookieName = "_bmc"

	// maxNonce bounds the proof-of-work search.
	maxNonce = 2_000_000

	// solutionCookieTTL matches the upstream literal of 86000 seconds,
	// slightly under a day.
	solutionCookieTTL = 86_000 * time.Second
)

var (
	// ErrNoStateCookie means the session has no challenge state to solve.
	// Callers treat this the same as an unsolvable challenge: the fetch
	// that surfaced the challenge marker cannot proceed.
	ErrNoStateCookie = errors.New("challenge: no state cookie in session")
	// ErrNonceExhausted means no nonce under the search bound satisfies
	// the declared difficulty.
	ErrNonceExhausted = errors.New("challenge: nonce space exhausted without solution")
)

// Solve reads the challenge state from jar for siteURL, runs the bounded
// proof-of-work search and injects the solution cookie scoped to domain.
func Solve(jar http.CookieJar, siteURL *url.URL, domain string) error {
	var state string
	for _, c := range jar.Cookies(siteURL) {
		if c.Name == StateCookieName {
			state = c.Value
			break
		}
	}
	if state == "" {
		return ErrNoStateCookie
	}

	decoded, err := url.QueryUnescape(state)
	if err != nil {
		return fmt.Errorf("challenge: decode state cookie: %w", err)
	}
	token, difficulty, err := parseState(decoded)
	if err != nil {
		return err
	}

	nonce, ok := solveNonce(token, difficulty)
	if !ok {
		return ErrNonceExhausted
	}

	jar.SetCookies(siteURL, []*http.Cookie{{
		Name:    SolutionCookieName,
		Value:   url.QueryEscape(fmt.Sprintf("%s;%d", token, nonce)),
		Domain:  "." + domain,
		Path:    "/",
		Expires: time.Now().Add(solutionCookieTTL),
		Secure:  false,
	}})
	return nil
}

func parseState(decoded string) (token string, difficulty int, err error) {
	parts := strings.Split(decoded, ";")
	if len(parts) < 2 {
		return "", 0, fmt.Errorf("challenge: malformed state cookie (%d parts)", len(parts))
	}
	difficulty, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("challenge: non-numeric difficulty %q", parts[1])
	}
	// A negative difficulty is an empty prefix: any nonce satisfies it.
	return parts[0], max(0, difficulty), nil
}

// solveNonce searches nonces 0..maxNonce for the first digest of
// token+nonce with difficulty leading zero hex digits.
func solveNonce(token string, difficulty int) (int, bool) {
	prefix := strings.Repeat("0", difficulty)
	for nonce := 0; nonce < maxNonce; nonce++ {
		digest := sha256.Sum256([]byte(token + strconv.Itoa(nonce)))
		if strings.HasPrefix(hex.EncodeToString(digest[:]), prefix) {
			return nonce, true
		}
	}
	return 0, false
}
