package auth

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

var cheap = Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestComputeAndVerify_RoundTrip(t *testing.T) {
	phc, err := ComputePasswordHash("correct horse battery staple", DefaultParams)
	if err != nil {
		t.Fatalf("ComputePasswordHash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$m=15000,t=2,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", phc)
	}
	if err := VerifyPasswordHash(phc, "correct horse battery staple"); err != nil {
		t.Fatalf("verify correct password: %v", err)
	}
	if err := VerifyPasswordHash(phc, "Correct horse battery staple"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("verify wrong password err = %v; want ErrPasswordMismatch", err)
	}
}

func TestComputePasswordHash_SaltsDiffer(t *testing.T) {
	a, _ := ComputePasswordHash("same", cheap)
	b, _ := ComputePasswordHash("same", cheap)
	if a == b {
		t.Fatalf("two hashes of the same password must differ")
	}
}

func TestVerifyPasswordHash_AcceptsArgon2i(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key := argon2.Key([]byte("legacy"), salt, 1, 64, 1, 32)
	phc := fmt.Sprintf("$argon2i$v=19$m=64,t=1,p=1$%s$%s", b64.EncodeToString(salt), b64.EncodeToString(key))

	if err := VerifyPasswordHash(phc, "legacy"); err != nil {
		t.Fatalf("argon2i verify: %v", err)
	}
	if err := VerifyPasswordHash(phc, "other"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("argon2i mismatch err = %v", err)
	}
}

func TestVerifyPasswordHash_DummyHashParses(t *testing.T) {
	h, err := parsePHC(dummyHash)
	if err != nil {
		t.Fatalf("dummy hash must parse: %v", err)
	}
	if h.params.Memory != DefaultParams.Memory || h.params.Iterations != DefaultParams.Iterations || h.params.Parallelism != DefaultParams.Parallelism {
		t.Fatalf("dummy hash must use production params, got %+v", h.params)
	}
	if err := VerifyPasswordHash(dummyHash, "anything"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("dummy hash verify err = %v; want ErrPasswordMismatch", err)
	}
}

func TestVerifyPasswordHash_Malformed(t *testing.T) {
	good, _ := ComputePasswordHash("pw", cheap)
	parts := strings.Split(good, "$")

	cases := map[string]string{
		"empty":         "",
		"plain text":    "hunter2",
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuuABCDEFGHIJKLMNOPQRSTUVWXYZ01234",
		"wrong variant": strings.Replace(good, "argon2id", "argon2d", 1),
		"wrong version": strings.Replace(good, "v=19", "v=16", 1),
		"bad params":    strings.Join([]string{"", parts[1], parts[2], "m=x,t=1,p=1", parts[4], parts[5]}, "$"),
		"zero memory":   strings.Join([]string{"", parts[1], parts[2], "m=0,t=1,p=1", parts[4], parts[5]}, "$"),
		"bad salt":      strings.Join([]string{"", parts[1], parts[2], parts[3], "!!", parts[5]}, "$"),
		"empty key":     strings.Join([]string{"", parts[1], parts[2], parts[3], parts[4], ""}, "$"),
	}
	for name, phc := range cases {
		if err := VerifyPasswordHash(phc, "pw"); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("%s: err = %v; want ErrMalformedHash", name, err)
		}
	}
}
