package shamir

import (
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults fill in", cfg: Config{}, wantErr: false},
		{name: "explicit valid", cfg: Config{N: 6, K: 3, Modulus: defaultModulus}, wantErr: false},
		{name: "k exceeds n", cfg: Config{N: 2, K: 3, Modulus: defaultModulus}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.N <= 0 || got.K <= 0 || got.Modulus <= 0 {
				t.Errorf("Validate() left a zero field: %+v", got)
			}
		})
	}
}

func TestAttributeString(t *testing.T) {
	if got := Comment.String(); got != "COMMENT" {
		t.Errorf("Comment.String() = %q, want COMMENT", got)
	}
	if got := Attribute(100).String(); got != "UNKNOWN" {
		t.Errorf("out-of-range Attribute.String() = %q, want UNKNOWN", got)
	}
}

func TestNormalizeDecimalRoundTrip(t *testing.T) {
	tests := []struct {
		in       float64
		wantNorm int64
	}{
		{17.50, 1750},
		{0, 0},
		{9.99, 999},
	}
	for _, tt := range tests {
		got := NormalizeDecimal(tt.in)
		if got != tt.wantNorm {
			t.Errorf("NormalizeDecimal(%v) = %d, want %d", tt.in, got, tt.wantNorm)
		}
		back := DecodeDecimal(got)
		if diff := back - tt.in; diff > 0.005 || diff < -0.005 {
			t.Errorf("DecodeDecimal(NormalizeDecimal(%v)) = %v, want within 0.005", tt.in, back)
		}
	}
}

func TestNormalizeCharRoundTrip(t *testing.T) {
	for _, c := range []byte{'N', 'R', 'A', 'O', 'F'} {
		got := DecodeChar(NormalizeChar(c))
		if got != c {
			t.Errorf("DecodeChar(NormalizeChar(%q)) = %q, want %q", c, got, c)
		}
	}
}

func TestNormalizeDateRoundTrip(t *testing.T) {
	dates := []string{"1998-01-02", "1992-03-22", "1994-12-31"}
	for _, d := range dates {
		v, err := NormalizeDate(d)
		if err != nil {
			t.Fatalf("NormalizeDate(%q) error = %v", d, err)
		}
		back := DecodeDate(v)
		if back != d {
			t.Errorf("DecodeDate(NormalizeDate(%q)) = %q, want %q", d, back, d)
		}
	}
}

func TestNormalizeDateInvalid(t *testing.T) {
	if _, err := NormalizeDate("not-a-date"); err == nil {
		t.Fatal("expected error for malformed date, got nil")
	}
}

func TestNormalizeStringRoundTrip(t *testing.T) {
	strs := []string{"", "N", "DELIVER IN PERSON", "TRUCK"}
	for _, s := range strs {
		v := NormalizeString(s)
		back := DecodeString(v)
		if back != s {
			t.Errorf("DecodeString(NormalizeString(%q)) = %q, want %q", s, back, s)
		}
	}
}

func sampleTuple() Tuple {
	return Tuple{
		OrderKey:     1,
		PartKey:      2,
		SuppKey:      3,
		LineNumber:   1,
		Quantity:     17,
		ExtPrice:     17954.55,
		Discount:     0.04,
		Tax:          0.02,
		RetFlag:      'N',
		LineStatus:   'O',
		ShipDate:     "1996-03-13",
		CommitDate:   "1996-02-12",
		RecDate:      "1996-03-22",
		ShipInstruct: "DELIVER IN PERSON",
		ShipMode:     "TRUCK",
		Comment:      "egular courts above the",
	}
}

// TestEncodeReconstruct is spec.md R1/P5: reconstructing any k of n
// shares recovers the normalized secret exactly, for every attribute.
func TestEncodeReconstruct(t *testing.T) {
	cfg := DefaultConfig()
	masterKey := []byte("test-master-key-0123456789abcdef")
	tuple := sampleTuple()

	vectors, err := Encode(cfg, masterKey, tuple)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(vectors) != cfg.N {
		t.Fatalf("Encode() returned %d vectors, want %d", len(vectors), cfg.N)
	}

	want, err := Normalize(tuple)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	// Reconstruct using every size-k subset drawn from the first k+1
	// replicas, to check the result doesn't depend on which shares are
	// used.
	subsets := [][]int{
		{0, 1, 2},
		{0, 1, 3},
		{1, 2, 3},
		{0, 2, 3},
	}
	for attr := 0; attr < TupleWidth; attr++ {
		for _, subset := range subsets {
			shares := make([]Share, len(subset))
			for i, replica := range subset {
				shares[i] = Share{X: int64(replica + 1), Y: vectors[replica][attr]}
			}
			got, err := Reconstruct(shares, cfg.K, cfg.Modulus)
			if err != nil {
				t.Fatalf("Reconstruct(attr=%d, subset=%v) error = %v", attr, subset, err)
			}
			if got != want[attr] {
				t.Errorf("Reconstruct(attr=%d, subset=%v) = %d, want %d", attr, subset, got, want[attr])
			}
		}
	}
}

// TestEncodeDeterministic checks that equal secrets produce equal shares
// at every replica across two different tuples, which is what makes the
// query evaluator's share-domain equality test sound.
func TestEncodeDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	masterKey := []byte("another-master-key-fedcba9876543")

	a := sampleTuple()
	b := sampleTuple()
	b.OrderKey = 999 // differs; RetFlag ('N') stays equal between a and b

	va, err := Encode(cfg, masterKey, a)
	if err != nil {
		t.Fatalf("Encode(a) error = %v", err)
	}
	vb, err := Encode(cfg, masterKey, b)
	if err != nil {
		t.Fatalf("Encode(b) error = %v", err)
	}

	for i := 0; i < cfg.N; i++ {
		if va[i][RetFlag] != vb[i][RetFlag] {
			t.Errorf("replica %d: RetFlag shares differ for equal secrets: %d != %d", i, va[i][RetFlag], vb[i][RetFlag])
		}
		if va[i][OrderKey] == vb[i][OrderKey] {
			t.Errorf("replica %d: OrderKey shares equal for differing secrets", i)
		}
	}
}

// TestEncodeDifferentMasterKeysDiffer checks shares are keyed by
// masterKey, not just the secret.
func TestEncodeDifferentMasterKeysDiffer(t *testing.T) {
	cfg := DefaultConfig()
	tuple := sampleTuple()

	v1, err := Encode(cfg, []byte("key-one-0123456789abcdef01234567"), tuple)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	v2, err := Encode(cfg, []byte("key-two-76543210fedcba9876543210"), tuple)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	same := true
	for i := range v1 {
		if v1[i] != v2[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Encode() under two different master keys produced identical vectors")
	}
}

func TestReconstructTooFewShares(t *testing.T) {
	shares := []Share{{X: 1, Y: 10}, {X: 2, Y: 20}}
	if _, err := Reconstruct(shares, 3, defaultModulus); err == nil {
		t.Fatal("expected error for too few shares, got nil")
	}
}

func TestVectorString(t *testing.T) {
	v := Vector{1, 2, 3}
	got := v.String()
	want := "1|2|3|0|0|0|0|0|0|0|0|0|0|0|0|0"
	if got != want {
		t.Errorf("Vector.String() = %q, want %q", got, want)
	}
}
