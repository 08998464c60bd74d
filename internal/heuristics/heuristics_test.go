package heuristics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{"plus and subdomain", "a.b+c@sub.example.co", true},
		{"simple", "info@acme.it", true},
		{"hyphen host", "x_y@my-shop.com", true},
		{"empty", "", false},
		{"no at", "not-an-email", false},
		{"no dot after at", "user@localhost", false},
		{"trailing garbage", "info@acme.it extra", false},
		{"double at", "a@b@c.it", false},
		{"empty segment", "a@b..it", false},
		{"leading space", " a@b.it", false},
		{"trailing dot", "a@b.it.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidEmail(tt.email))
		})
	}
}

func TestSuggestEmailFix_NoAt(t *testing.T) {
	for _, s := range []string{"", "mario.rossi", "gmail.com", "nan"} {
		got, ok := SuggestEmailFix(s, []string{"gmail.com", "libero.it"})
		assert.False(t, ok, s)
		assert.Empty(t, got, s)
	}
}

func TestSuggestEmailFix(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		candidates []string
		want       string
		wantOK     bool
	}{
		{
			name:       "first three characters match",
			email:      "mario@gmial.com",
			candidates: []string{"libero.it", "gmail.com"},
			want:       "mario@gmail.com",
			wantOK:     true,
		},
		{
			name:       "first match wins",
			email:      "u@xyzz",
			candidates: []string{"xyz.it", "xyz.com"},
			want:       "u@xyz.it",
			wantOK:     true,
		},
		{
			name:       "domain lower-cased and trimmed",
			email:      "u@ ACME ",
			candidates: []string{"acme.it"},
			want:       "u@acme.it",
			wantOK:     true,
		},
		{
			name:       "empty candidates skipped",
			email:      "u@acm",
			candidates: []string{"", "acme.it"},
			want:       "u@acme.it",
			wantOK:     true,
		},
		{
			name:       "short candidate compared whole",
			email:      "u@ab.it",
			candidates: []string{"ab"},
			want:       "u@ab",
			wantOK:     true,
		},
		{
			name:       "no candidate matches",
			email:      "u@zzz",
			candidates: []string{"acme.it", "gmail.com"},
		},
		{
			name:  "no candidates",
			email: "u@acme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestEmailFix(tt.email, tt.candidates)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSuggestEmailFix_PreservesOrder(t *testing.T) {
	candidates := []string{"abc.it", "abd.it", "abc.com"}
	got, ok := SuggestEmailFix("u@abcdef", candidates)
	assert.True(t, ok)
	assert.Equal(t, "u@abc.it", got)

	reversed := []string{"abc.com", "abd.it", "abc.it"}
	got, ok = SuggestEmailFix("u@abcdef", reversed)
	assert.True(t, ok)
	assert.Equal(t, "u@abc.com", got)
}

func TestEmailDomain(t *testing.T) {
	assert.Equal(t, "acme.it", EmailDomain("info@acme.it"))
	assert.Equal(t, "b@c.it", EmailDomain("a@b@c.it"))
	assert.Equal(t, "", EmailDomain("nothing"))
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/path", "example.com"},
		{"http://example.com", "example.com"},
		{"www.acme.it/contatti/", "acme.it"},
		{"acme.it", "acme.it"},
		{"shop.acme.it/a/b", "shop.acme.it"},
		{"", ""},
		{"///", "///"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDomain(tt.in))
		})
	}
}

func TestSplitCity(t *testing.T) {
	tests := []struct {
		in   string
		want CityParts
	}{
		{"Milano 20100 MI", CityParts{City: "Milano", CAP: "20100", Province: "MI"}},
		{"20121 Milano MI", CityParts{City: "Milano", CAP: "20121", Province: "MI"}},
		{"RM 00100 Roma", CityParts{City: "Roma", CAP: "00100", Province: "RM"}},
		{"Bolzano 3900", CityParts{City: "Bolzano", CAP: "3900"}},
		{"Torino TO", CityParts{City: "Torino", Province: "TO"}},
		{"San 20097 Donato Milanese", CityParts{City: "San Donato Milanese", CAP: "20097"}},
		{"MILANO 20100 MI", CityParts{City: "MILANO", CAP: "20100", Province: "MI"}},
		{"Roma", CityParts{City: "Roma"}},
		{"", CityParts{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitCity(tt.in))
		})
	}
}

func TestSplitCity_Idempotent(t *testing.T) {
	for _, in := range []string{"Milano 20100 MI", "Città di Castello 06012 PG", "Napoli", "Reggio Emilia RE"} {
		first := SplitCity(in)
		second := SplitCity(first.City)
		assert.Equal(t, first.City, second.City, in)
		assert.Empty(t, second.CAP, in)
		assert.Empty(t, second.Province, in)
	}
}

func TestCAPFromAddress(t *testing.T) {
	assert.Equal(t, "00184", CAPFromAddress("Via Cavour 12, 00184 Roma"))
	assert.Equal(t, "", CAPFromAddress("Via Cavour 12"))
}

func TestStripCAP(t *testing.T) {
	assert.Equal(t, "Via Cavour 12,  Roma", StripCAP("Via Cavour 12, 00184 Roma"))
	assert.Equal(t, "Piazza Duomo", StripCAP("Piazza Duomo 20121"))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Roma", Capitalize("roma"))
	assert.Equal(t, "San donato", Capitalize("san donato"))
	assert.Equal(t, "ÈRCOLANO", Capitalize("èRCOLANO"))
	assert.Equal(t, "", Capitalize(""))
}
