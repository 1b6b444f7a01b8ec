package consts

// MailbridgeAdvisoryLockID is the PostgreSQL advisory lock used to
// serialize schema migrations against a running daemon.
const MailbridgeAdvisoryLockID int64 = 728341
