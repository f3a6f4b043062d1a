package constants

const (
	// gin context 注入键
	DbField      = "db"
	UserField    = "user"
	SessionField = "session"

	// session 键
	UserIDKey = "user_id"
)
