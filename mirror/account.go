package mirror

// Account is the mirrored copy of a directory user on one remote server.
// It snapshots the directory attributes that were last pushed.
type Account struct {
	ServerID     int64
	UserID       string
	Type         AccountType
	DisplayName  string
	PasswordHash string
	Quota        int64
}

// Email is one mirrored email address of an account on one remote server.
// At most one row per (server, user) carries EmailTypePrimary.
type Email struct {
	ServerID int64
	UserID   string
	Address  string
	Type     EmailType
}

// UserSummary is the outward-facing shape of a provisioned user.
// Email is null when the account has no primary address.
type UserSummary struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	Email       *string `json:"email"`
}

// Summary returns the serializable view of the account, joined with its
// primary email when one exists.
func (a Account) Summary(primary *Email) UserSummary {
	s := UserSummary{
		UID:         a.UserID,
		DisplayName: a.DisplayName,
	}
	if primary != nil {
		addr := primary.Address
		s.Email = &addr
	}
	return s
}
