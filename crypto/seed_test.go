package crypto

import "testing"

func TestCommit(t *testing.T) {
	seed, hash, err := Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if len(seed) != 64 { // 32 bytes hex encoded
		t.Errorf("seed length = %d, want 64", len(seed))
	}
	if len(hash) != 64 { // sha256 hex encoded
		t.Errorf("hash length = %d, want 64", len(hash))
	}

	if !Verify(seed, hash) {
		t.Error("freshly committed seed does not verify against its own hash")
	}
}

func TestCommitUnique(t *testing.T) {
	seed1, hash1, err := Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	seed2, hash2, err := Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if seed1 == seed2 {
		t.Error("Commit produced duplicate seeds")
	}
	if hash1 == hash2 {
		t.Error("Commit produced duplicate hashes")
	}
}

func TestVerifyRejectsTamperedSeed(t *testing.T) {
	seed, hash, err := Commit()
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tampered := "0" + seed[1:]
	if tampered != seed && Verify(tampered, hash) {
		t.Error("Verify accepted a tampered seed")
	}
	if Verify(seed, hash[:63]+"0") && hash[63] != '0' {
		t.Error("Verify accepted a tampered hash")
	}
}
