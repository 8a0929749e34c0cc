package validation

import "testing"

func TestValidateISRC(t *testing.T) {
	tests := []struct {
		isrc string
		want bool
	}{
		{"USRC17607839", true},
		{"US-RC1-76-07839", true},
		{"us-rc1-76-07839", true},
		{"QZNWX2115842", true},
		{"USRC1760783", false},   // too short
		{"USRC176078391", false}, // too long
		{"1SRC17607839", false},  // country must be letters
		{"USRC1A607839", false},  // year must be digits
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidateISRC(tt.isrc); got != tt.want {
			t.Errorf("ValidateISRC(%q) = %v, want %v", tt.isrc, got, tt.want)
		}
	}
}

func TestHasIrregularCapitalization(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"Shout", false},
		{"SHOUT", true},
		{"DJ Nova", false},
		{"USA Anthem", false},
		{"SoNg Title", true},
		{"McCartney", true}, // mid-word capital requires the ack
		{"LOVE", true},
		{"", false},
		{"lowercase all the way", false},
	}

	for _, tt := range tests {
		if got := HasIrregularCapitalization(tt.s); got != tt.want {
			t.Errorf("HasIrregularCapitalization(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestValidateLanguage(t *testing.T) {
	tests := []struct {
		lang string
		want bool
	}{
		{"en", true},
		{"pt-BR", true},
		{"de", true},
		{"eng", false},
		{"EN", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidateLanguage(tt.lang); got != tt.want {
			t.Errorf("ValidateLanguage(%q) = %v, want %v", tt.lang, got, tt.want)
		}
	}
}
