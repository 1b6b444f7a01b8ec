package consts

// ContextKey types context keys so they cannot collide across packages.
type ContextKey string

// UseMasterDBKey marks a context so the database layer routes the query to
// the write pool instead of a read replica. Handlers set it after a mutation
// when the follow-up read must observe that write.
const UseMasterDBKey = ContextKey("use_master")
