package mirror

import "testing"

func TestParseHealth(t *testing.T) {
	tests := []struct {
		input   string
		want    Health
		wantErr bool
	}{
		{"success", HealthSuccess, false},
		{"unauthorized", HealthUnauthorized, false},
		{"bad_server", HealthBadServer, false},
		{"bad_network", HealthBadNetwork, false},
		{"invalid", HealthInvalid, false},
		{"", "", true},
		{"Success", "", true},
		{"ok", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHealth(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHealth(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseHealth(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEmailType(t *testing.T) {
	if got, err := ParseEmailType("primary"); err != nil || got != EmailTypePrimary {
		t.Errorf("ParseEmailType(primary) = %q, %v", got, err)
	}
	if got, err := ParseEmailType("alias"); err != nil || got != EmailTypeAlias {
		t.Errorf("ParseEmailType(alias) = %q, %v", got, err)
	}
	if _, err := ParseEmailType("secondary"); err == nil {
		t.Error("ParseEmailType accepted an unknown value")
	}
}

func TestParseAccountType(t *testing.T) {
	if got, err := ParseAccountType("individual"); err != nil || got != AccountTypeIndividual {
		t.Errorf("ParseAccountType(individual) = %q, %v", got, err)
	}
	if got, err := ParseAccountType("group"); err != nil || got != AccountTypeGroup {
		t.Errorf("ParseAccountType(group) = %q, %v", got, err)
	}
	if _, err := ParseAccountType("shared"); err == nil {
		t.Error("ParseAccountType accepted an unknown value")
	}
}

func TestAccountSummary(t *testing.T) {
	account := Account{
		ServerID:    1,
		UserID:      "alice",
		Type:        AccountTypeIndividual,
		DisplayName: "Alice A.",
	}

	t.Run("without primary email", func(t *testing.T) {
		s := account.Summary(nil)
		if s.UID != "alice" || s.DisplayName != "Alice A." {
			t.Errorf("summary = %+v", s)
		}
		if s.Email != nil {
			t.Errorf("email = %v, want nil", *s.Email)
		}
	})

	t.Run("with primary email", func(t *testing.T) {
		primary := &Email{ServerID: 1, UserID: "alice", Address: "alice@example.com", Type: EmailTypePrimary}
		s := account.Summary(primary)
		if s.Email == nil || *s.Email != "alice@example.com" {
			t.Errorf("email = %v, want alice@example.com", s.Email)
		}
	})
}
