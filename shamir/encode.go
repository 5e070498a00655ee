package shamir

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Encode shares t's 16 normalized attributes under cfg, returning one
// Vector per replica (cfg.N vectors, X = replica index + 1 implicit in
// the slice position — spec.md §6's share files use the same
// convention: "the X-coordinate is implicit in the file name").
//
// Deterministic coefficients (spec.md §9, resolved). The non-constant
// polynomial coefficients for a given (attribute, secret) pair are
// derived from masterKey via HMAC-SHA256 rather than fresh randomness,
// so that two tuples sharing the same secret for an attribute produce
// identical shares at every replica. This is what makes the query
// evaluator's share-domain equality test (spec.md §4.8) sound: without
// it, two equal secrets could land on different polynomials and compare
// unequal in share space.
func Encode(cfg Config, masterKey []byte, t Tuple) ([]Vector, error) {
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	secrets, err := Normalize(t)
	if err != nil {
		return nil, err
	}

	vectors := make([]Vector, cfg.N)
	for attr := 0; attr < TupleWidth; attr++ {
		coeffs := polynomialCoefficients(masterKey, Attribute(attr), secrets[attr], cfg)
		for x := 1; x <= cfg.N; x++ {
			vectors[x-1][attr] = evalPoly(coeffs, int64(x), cfg.Modulus)
		}
	}
	return vectors, nil
}

// polynomialCoefficients builds p(x) = secret + a_1*x + ... + a_{k-1}*x^(k-1)
// for one attribute, with a_i (i>=1) derived deterministically from
// masterKey, attr, and secret.
func polynomialCoefficients(masterKey []byte, attr Attribute, secret int64, cfg Config) []int64 {
	coeffs := make([]int64, cfg.K)
	coeffs[0] = mod(secret, cfg.Modulus)
	for i := 1; i < cfg.K; i++ {
		coeffs[i] = derivePRFCoefficient(masterKey, attr, secret, i, cfg.Modulus)
	}
	return coeffs
}

// derivePRFCoefficient computes HMAC-SHA256(masterKey, attr || secret ||
// coeffIndex), reduced mod modulus, as the i-th non-constant coefficient.
func derivePRFCoefficient(masterKey []byte, attr Attribute, secret int64, coeffIndex int, modulus int64) int64 {
	msg := make([]byte, 24)
	binary.BigEndian.PutUint64(msg[0:8], uint64(attr))
	binary.BigEndian.PutUint64(msg[8:16], uint64(secret))
	binary.BigEndian.PutUint64(msg[16:24], uint64(coeffIndex))

	h := hmac.New(sha256.New, masterKey)
	h.Write(msg)
	sum := h.Sum(nil)

	v := binary.BigEndian.Uint64(sum[:8])
	return int64(v % uint64(modulus))
}

// evalPoly evaluates coeffs[0] + coeffs[1]*x + ... mod modulus by summing
// each coefficient times a running power of x. Every product goes through
// mulmod and the running sum stays below 2*modulus, so nothing overflows
// int64.
func evalPoly(coeffs []int64, x, modulus int64) int64 {
	var y int64
	power := int64(1)
	for _, c := range coeffs {
		y = mod(y+mulmod(c, power, modulus), modulus)
		power = mulmod(power, x, modulus)
	}
	return y
}

// mulmod computes a*b mod m without overflowing int64: m is a ~34-bit
// prime, so a%m times b%m can reach ~68 bits, past int64's 63 usable
// bits. math/big's arbitrary-precision arithmetic (the same package the teacher's
// oram.go already reaches for in randomLeaf) handles the intermediate
// product exactly.
func mulmod(a, b, m int64) int64 {
	var prod big.Int
	prod.Mul(big.NewInt(mod(a, m)), big.NewInt(mod(b, m)))
	prod.Mod(&prod, big.NewInt(m))
	return prod.Int64()
}

func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// String satisfies fmt.Stringer for Vector, for diagnostics and the
// pipe-separated share-file line format spec.md §6 describes.
func (v Vector) String() string {
	s := ""
	for i, y := range v {
		if i > 0 {
			s += "|"
		}
		s += fmt.Sprintf("%d", y)
	}
	return s
}
