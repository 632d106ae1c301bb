package database

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"telecare-backend/pkg/config"
)

// DefaultCassandraQueryTimeout is the default timeout for Cassandra queries
const DefaultCassandraQueryTimeout = 5 * time.Second

// CassandraDB wraps the gocql Session
type CassandraDB struct {
	Session *gocql.Session
}

// NewCassandraDB creates a new CassandraDB instance with configured timeouts
func NewCassandraDB(cfg *config.CassandraConfig) (*CassandraDB, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum

	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	} else {
		cluster.Timeout = DefaultCassandraQueryTimeout
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}

	return &CassandraDB{Session: session}, nil
}

// Close closes the Cassandra session
func (db *CassandraDB) Close() {
	db.Session.Close()
}
