package dbbroker

import "github.com/oriys/raikiri/internal/domain"

// DefaultDialers returns the production Dialer set, one per supported
// domain.ConnectionKind (§4.5).
func DefaultDialers() map[domain.ConnectionKind]Dialer {
	return map[domain.ConnectionKind]Dialer{
		domain.ConnectionPostgreSQL: DialPostgres,
		domain.ConnectionMySQL:      DialMySQL,
		domain.ConnectionMongoDB:    DialMongoDB,
		domain.ConnectionDynamoDB:   DialDynamoDB,
	}
}
