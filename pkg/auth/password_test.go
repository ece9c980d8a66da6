package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("harvest2024")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "harvest2024" {
		t.Fatalf("hash looks wrong: %q", hash)
	}
	if !CheckPassword("harvest2024", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("harvest2025", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	if CheckPassword("anything", "not-a-bcrypt-hash") {
		t.Fatal("malformed hash accepted")
	}
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		password string
		ok       bool
	}{
		{"harvest2024", true},
		{"short1a", false},
		{"allletters", false},
		{"1234567890", false},
		{"", false},
		{"paddyW1field", true},
	}
	for _, tc := range cases {
		err := ValidatePassword(tc.password)
		if tc.ok && err != nil {
			t.Errorf("ValidatePassword(%q) = %v, want nil", tc.password, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("ValidatePassword(%q) = nil, want error", tc.password)
		}
	}
}
