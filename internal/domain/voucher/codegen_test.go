package voucher

import (
	"strings"
	"testing"
)

func TestGenerateCodeAlphabetAndSpread(t *testing.T) {
	const codes = 10000
	counts := make(map[rune]int, len(codeAlphabet))

	for i := 0; i < codes; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("expected %d chars, got %q", CodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("unexpected character %q in %q", c, code)
			}
			counts[c]++
		}
	}

	// 200000 draws over 36 symbols: about 5556 each, sigma about 74
	expected := codes * CodeLength / len(codeAlphabet)
	for _, c := range codeAlphabet {
		if n := counts[c]; n < expected-400 || n > expected+400 {
			t.Errorf("character %q drawn %d times, expected about %d", c, n, expected)
		}
	}
}
