package mirror

import "fmt"

// Health is the last-known reachability/auth status of a configured
// remote mail server. It is recomputed only by explicit health probes,
// never by configuration CRUD.
type Health string

const (
	HealthSuccess      Health = "success"
	HealthUnauthorized Health = "unauthorized"
	HealthBadServer    Health = "bad_server"
	HealthBadNetwork   Health = "bad_network"
	HealthInvalid      Health = "invalid"
)

// ParseHealth converts a stored string into a Health value.
func ParseHealth(s string) (Health, error) {
	switch Health(s) {
	case HealthSuccess, HealthUnauthorized, HealthBadServer, HealthBadNetwork, HealthInvalid:
		return Health(s), nil
	default:
		return "", fmt.Errorf("unknown health value %q", s)
	}
}

// EmailType tags a mirrored email row.
type EmailType string

const (
	EmailTypePrimary EmailType = "primary"
	EmailTypeAlias   EmailType = "alias"
)

// ParseEmailType converts a stored string into an EmailType.
func ParseEmailType(s string) (EmailType, error) {
	switch EmailType(s) {
	case EmailTypePrimary, EmailTypeAlias:
		return EmailType(s), nil
	default:
		return "", fmt.Errorf("unknown email type %q", s)
	}
}

// AccountType tags a mirrored account row. Only individual accounts are
// provisioned today; the group type is reserved for shared mailboxes.
type AccountType string

const (
	AccountTypeIndividual AccountType = "individual"
	AccountTypeGroup      AccountType = "group"
)

// ParseAccountType converts a stored string into an AccountType.
func ParseAccountType(s string) (AccountType, error) {
	switch AccountType(s) {
	case AccountTypeIndividual, AccountTypeGroup:
		return AccountType(s), nil
	default:
		return "", fmt.Errorf("unknown account type %q", s)
	}
}
