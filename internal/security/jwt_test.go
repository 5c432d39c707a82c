package security

import (
	"testing"
	"time"
)

func TestSignAndParseAdminToken(t *testing.T) {
	token, errSign := SignAdminToken("secret", "ops", time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}

	claims, errParse := ParseAdminToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.Subject != "ops" {
		t.Fatalf("subject = %q, want ops", claims.Subject)
	}
}

func TestParseAdminTokenWrongSecret(t *testing.T) {
	token, errSign := SignAdminToken("secret", "ops", time.Hour)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	if _, errParse := ParseAdminToken("other", token); errParse == nil {
		t.Fatalf("token signed with a different secret must not validate")
	}
}

func TestParseAdminTokenExpired(t *testing.T) {
	token, errSign := SignAdminToken("secret", "ops", -time.Minute)
	if errSign != nil {
		t.Fatalf("sign: %v", errSign)
	}
	if _, errParse := ParseAdminToken("secret", token); errParse == nil {
		t.Fatalf("expired token must not validate")
	}
}
