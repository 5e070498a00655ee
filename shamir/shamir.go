// Package shamir implements the (k,n) Shamir secret-sharing layer that
// turns one typed TPC-H lineitem-shaped tuple into n per-replica share
// vectors of 16 int64s each (spec.md §4.7). Every attribute, including
// plain integers, is shared under the prime modulus M = 9999999967 —
// this package resolves spec.md §9's open question ("pick one policy:
// always operate in a finite field GF(p)") in favor of GF(p) everywhere,
// rather than the original's mix of modulus/no-modulus attributes.
//
// Grounded on _examples/original_source/Shamir_Parser/shamir_parser.cpp
// (polynomial construction, normalization table, reconstruction via
// Lagrange) and the teacher's own math/big-backed uniform sampling idiom
// in oram.go's randomLeaf.
package shamir

import "errors"

// TupleWidth is the fixed attribute count per spec.md §6's encoding table.
const TupleWidth = 16

// Attribute indexes spec.md §6's authoritative attribute encoding table.
type Attribute int

const (
	OrderKey Attribute = iota
	PartKey
	SuppKey
	LineNumber
	Quantity
	ExtPrice
	Discount
	Tax
	RetFlag
	LineStatus
	ShipDate
	CommitDate
	RecDate
	ShipInstruct
	ShipMode
	Comment
)

// attributeNames mirrors the Attribute enum for diagnostics.
var attributeNames = [TupleWidth]string{
	"ORDERKEY", "PARTKEY", "SUPPKEY", "LINENUMBER",
	"QUANTITY", "EXTPRICE", "DISCOUNT", "TAX",
	"RETFLAG", "LINSTAT", "SHIPDATE", "COMMITDATE",
	"RECDATE", "SHIPINSTR", "SHIPMODE", "COMMENT",
}

func (a Attribute) String() string {
	if a < 0 || int(a) >= TupleWidth {
		return "UNKNOWN"
	}
	return attributeNames[a]
}

// defaultModulus is the source's MODULUS_HUGE: a prime comfortably above
// 2^33, large enough to hold the base-256 packing of the short ASCII
// string attributes (spec.md §4.7) and every other attribute's range.
const defaultModulus int64 = 9999999967

// Config fixes the (n,k) sharing scheme and its field modulus. Zero value
// is invalid; use DefaultConfig or Config.Validate.
type Config struct {
	N       int   `yaml:"n"`       // total shares per attribute (replicas)
	K       int   `yaml:"k"`       // reconstruction threshold
	Modulus int64 `yaml:"modulus"` // prime field modulus, shared by every attribute
}

// DefaultConfig returns spec.md §6's default (n,k) = (6,3) over the
// source's prime modulus.
func DefaultConfig() Config {
	return Config{N: 6, K: 3, Modulus: defaultModulus}
}

// ErrInvalidConfig reports an inconsistent N/K/Modulus.
var ErrInvalidConfig = errors.New("shamir: invalid configuration")

// Validate checks cfg and fills in defaults, returning a copy.
func (c Config) Validate() (Config, error) {
	if c.Modulus <= 0 {
		c.Modulus = defaultModulus
	}
	if c.N <= 0 {
		c.N = 6
	}
	if c.K <= 0 {
		c.K = 3
	}
	if c.K > c.N {
		return c, ErrInvalidConfig
	}
	return c, nil
}

// Tuple is one TPC-H lineitem-shaped row, in the typed form a caller
// supplies before sharing. Dates are ISO-8601 ("YYYY-MM-DD") strings.
type Tuple struct {
	OrderKey     int64
	PartKey      int64
	SuppKey      int64
	LineNumber   int64
	Quantity     int64
	ExtPrice     float64
	Discount     float64
	Tax          float64
	RetFlag      byte
	LineStatus   byte
	ShipDate     string
	CommitDate   string
	RecDate      string
	ShipInstruct string
	ShipMode     string
	Comment      string
}

// Vector is one replica's share values for all 16 attributes of one
// tuple — the Y-coordinates spec.md §6's share files persist one per
// line.
type Vector [TupleWidth]int64

// Share is a single (X,Y) point of one attribute's polynomial.
type Share struct {
	X int64
	Y int64
}
