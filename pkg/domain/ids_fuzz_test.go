package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseNationName checks that parsing never panics and that accepted names
// are stable under re-parsing.
func FuzzParseNationName(f *testing.F) {
	f.Add("")
	f.Add("Testlandia")
	f.Add("  padded  ")
	f.Add("'; DROP TABLE signatures;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("Testlandia\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		name, err := ParseNationName(input)
		if err != nil {
			return
		}
		again, err := ParseNationName(name.String())
		if err != nil {
			t.Errorf("accepted name failed re-parse: %v", err)
		}
		if again != name {
			t.Error("re-parse changed name")
		}
		if !utf8.ValidString(input) {
			t.Error("non-UTF8 input was accepted")
		}
		if len(name) > MaxNationNameLength {
			t.Error("overlong name was accepted")
		}
	})
}

func FuzzParseSignatureID(f *testing.F) {
	f.Add("1")
	f.Add("")
	f.Add("9223372036854775808")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseSignatureID(input)
		if err == nil && id <= 0 {
			t.Errorf("non-positive id %d accepted", id)
		}
	})
}
