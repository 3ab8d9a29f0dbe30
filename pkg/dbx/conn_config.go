package dbx

// ConnConfig represents the configuration required for a database connection pool.
//
// AutoCommit selects the mode connections are handed out in when no external
// transaction is bound: when true each statement commits implicitly, when
// false a transaction is opened on acquisition and the holder is expected to
// commit or roll it back.
type ConnConfig struct {
	Host       string `validate:"required"`
	Port       int32  `validate:"required"`
	DBName     string `validate:"required"`
	User       string `validate:"required"`
	Password   string `validate:"required"`
	MaxConn    int32  `validate:"gte=1"`
	AutoCommit bool
	IsLocalEnv bool
}
