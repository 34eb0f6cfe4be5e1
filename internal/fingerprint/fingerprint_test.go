package fingerprint

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Data Analyst", "data analyst"},
		{"gender marker", "Data Analyst (m/w/d)", "data analyst"},
		{"gender marker variant", "BI Analyst (f/m/d)", "bi analyst"},
		{"legal suffix", "Google GmbH", "google"},
		{"legal suffix ltd", "Acme Limited", "acme"},
		{"punctuation", "Google, Berlin!", "google berlin"},
		{"cyrillic kept", "Аналитик данных", "аналитик данных"},
		{"whitespace collapsed", "  data   analyst ", "data analyst"},
		{"empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFingerprint_StableUnderNoise(t *testing.T) {
	a := Fingerprint("Data Analyst (m/w/d)", "Google GmbH", "Berlin")
	b := Fingerprint("Data Analyst", "Google", "Berlin")
	if a != b {
		t.Errorf("fingerprints differ for the same normalized triple: %s vs %s", a, b)
	}

	c := Fingerprint("DATA ANALYST", "google ag", "berlin")
	if a != c {
		t.Errorf("fingerprint not case/suffix stable: %s vs %s", a, c)
	}
}

func TestFingerprint_DiffersForDistinctPostings(t *testing.T) {
	a := Fingerprint("Data Analyst", "Google", "Berlin")
	b := Fingerprint("Data Analyst", "Google", "Hamburg")
	if a == b {
		t.Error("distinct locations must not collide")
	}

	c := Fingerprint("Data Engineer", "Google", "Berlin")
	if a == c {
		t.Error("distinct titles must not collide")
	}
}

func TestFingerprint_LocationNormalizedFirst(t *testing.T) {
	// Location truncation happens before fingerprinting; once both sides
	// normalize to "Berlin" the keys must match.
	a := Fingerprint("Data Analyst", "Google", NormalizeLocation("Berlin city"))
	b := Fingerprint("Data Analyst", "Google", NormalizeLocation("Berlin"))
	if a != b {
		t.Errorf("normalized locations should collide: %s vs %s", a, b)
	}
}

func TestNormalizeLocation(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Deutschland", "Remote/Deutschland"},
		{"remote", "Remote/Deutschland"},
		{"", "Remote/Deutschland"},
		{"Berlin, Berlin", "Berlin"},
		{"Munich", "München"},
		{"frankfurt am main (Hessen)", "Frankfurt am Main"},
		{"Cologne", "Köln"},
		{"10115 Berlin", "Berlin"},
		{"Zurich", "Zürich"},
		{"Leipzig", "Leipzig"},
	}

	for _, tc := range cases {
		if got := NormalizeLocation(tc.in); got != tc.want {
			t.Errorf("NormalizeLocation(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Data Analyst (m/w/d)", "Data Analyst"},
		{"Data Engineer - 100% Remote", "Data Engineer"},
		{"BI Analyst | Homeoffice", "BI Analyst"},
		{"Data Scientist", "Data Scientist"},
	}

	for _, tc := range cases {
		if got := CleanTitle(tc.in); got != tc.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
