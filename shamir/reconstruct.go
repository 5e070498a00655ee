package shamir

import "fmt"

// Reconstruct implements the client-only Lagrange-at-0 contract (spec.md
// §4.7/R1): given any k distinct shares of one attribute, it recovers
// the normalized integer secret exactly. spec.md §1 explicitly keeps
// this off the untrusted server's code path — it is stated here as a
// contract for the trusted client, not invoked by query.Evaluator.
//
// Grounded on the original's modInverse + reconstructSecret in
// _examples/original_source/Shamir_Parser/shamir_parser.cpp, replacing
// its floating-point Lagrange coefficients with exact modular arithmetic
// now that every attribute (not just strings) is shared under a field
// modulus (spec.md §9, resolved).
func Reconstruct(shares []Share, k int, modulus int64) (int64, error) {
	if len(shares) < k {
		return 0, fmt.Errorf("shamir: %d shares, need at least %d", len(shares), k)
	}
	shares = shares[:k]

	var secret int64
	for i := range shares {
		num := int64(1)
		den := int64(1)
		for j := range shares {
			if i == j {
				continue
			}
			num = mulmod(num, mod(-shares[j].X, modulus), modulus)
			den = mulmod(den, mod(shares[i].X-shares[j].X, modulus), modulus)
		}
		invDen, err := modInverse(den, modulus)
		if err != nil {
			return 0, fmt.Errorf("shamir: reconstruct: %w", err)
		}
		term := mulmod(mod(shares[i].Y, modulus), mulmod(num, invDen, modulus), modulus)
		secret = mod(secret+term, modulus)
	}

	// Shares live in GF(p); canonicalize back to a signed range so
	// negative secrets (which never occur in the lineitem attributes
	// this system shares, but are not ruled out by the field arithmetic
	// itself) round-trip.
	if secret > modulus/2 {
		secret -= modulus
	}
	return secret, nil
}

// modInverse returns a^-1 mod m via the extended Euclidean algorithm,
// the same algorithm the original's modInverse implements.
func modInverse(a, m int64) (int64, error) {
	a = mod(a, m)
	if a == 0 {
		return 0, fmt.Errorf("shamir: no inverse of 0 mod %d", m)
	}
	g, x, _ := extendedGCD(a, m)
	if g != 1 {
		return 0, fmt.Errorf("shamir: %d has no inverse mod %d", a, m)
	}
	return mod(x, m), nil
}

// extendedGCD returns (g, x, y) such that a*x + b*y = g = gcd(a,b).
func extendedGCD(a, b int64) (g, x, y int64) {
	if b == 0 {
		return a, 1, 0
	}
	g, x1, y1 := extendedGCD(b, a%b)
	return g, y1, x1 - (a/b)*y1
}
