package strategy

import (
	"testing"
)

func TestInvokedOperations(t *testing.T) {
	tests := []struct {
		name string
		code string
		want []string
	}{
		{
			name: "plain calls",
			code: `await vault.deposit({value: one});
await vault.withdraw(one);`,
			want: []string{"deposit", "withdraw"},
		},
		{
			name: "signer routing ignored",
			code: `await token.connect(attacker).transferFrom(victim, attacker, amount);`,
			want: []string{"transferFrom"},
		},
		{
			name: "framework noise filtered",
			code: `const [owner] = await ethers.getSigners();
const Vault = await ethers.getContractFactory("Vault");
expect(await vault.balanceOf(owner)).to.equal(0);
console.log("done");`,
			want: []string{"balanceOf"},
		},
		{
			name: "duplicates preserved",
			code: `await vault.withdraw(x); await vault.withdraw(x);`,
			want: []string{"withdraw", "withdraw"},
		},
		{
			name: "no calls",
			code: `const x = 1;`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InvokedOperations(tt.code)
			if len(got) != len(tt.want) {
				t.Fatalf("InvokedOperations() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("op[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestFingerprint_CosmeticChangesCollide verifies that two attempts with
// different literal text but identical structure share a signature.
func TestFingerprint_CosmeticChangesCollide(t *testing.T) {
	a := `// first try
const amount = ethers.parseEther("1");
await vault.deposit({value: amount});
await vault.withdraw(amount);`

	b := `/* renamed everything, same shape */
const howMuch = ethers.parseEther("2");
await bank.deposit({value: howMuch});
await bank.withdraw(howMuch);`

	if Fingerprint(a) != Fingerprint(b) {
		t.Errorf("structurally identical attempts should collide: %s vs %s",
			Fingerprint(a), Fingerprint(b))
	}
}

func TestFingerprint_DifferentSequencesDiffer(t *testing.T) {
	a := `await vault.deposit({value: x}); await vault.withdraw(x);`
	b := `await vault.withdraw(x); await vault.deposit({value: x});`

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("different operation orderings should produce different signatures")
	}
}

func TestFingerprint_ValueTransferDistinguishes(t *testing.T) {
	a := `await vault.poke();`
	b := `await vault.poke(); await attacker.sendTransaction({to: vault, value: 1});`

	if Fingerprint(a) == Fingerprint(b) {
		t.Error("value-transfer presence should alter the signature")
	}
}

func TestTracker_Monotonic(t *testing.T) {
	tr := NewTracker()

	codes := []string{
		`await vault.withdraw(x);`,
		`await vault.deposit({value: x});`,
		`await vault.withdraw(x);`, // repeat of the first
	}

	prev := 0
	for i, code := range codes {
		tr.Record(code)
		if tr.Size() < prev {
			t.Fatalf("tracker size decreased after record %d", i)
		}
		prev = tr.Size()
	}

	if tr.Size() != 2 {
		t.Errorf("Size() = %d, want 2 distinct fingerprints", tr.Size())
	}
}

func TestTracker_IsNovel(t *testing.T) {
	tr := NewTracker()
	code := `await vault.drain();`

	if !tr.IsNovel(Fingerprint(code)) {
		t.Error("unseen signature should be novel")
	}
	tr.Record(code)
	if tr.IsNovel(Fingerprint(code)) {
		t.Error("recorded signature should no longer be novel")
	}
}

func TestTracker_TriedSequences(t *testing.T) {
	tr := NewTracker()
	tr.Record(`await vault.deposit({value: x}); await vault.withdraw(x);`)

	seqs := tr.TriedSequences()
	if len(seqs) != 1 {
		t.Fatalf("TriedSequences() returned %d entries, want 1", len(seqs))
	}
	if seqs[0] != "deposit -> withdraw" {
		t.Errorf("sequence = %q, want %q", seqs[0], "deposit -> withdraw")
	}
}
