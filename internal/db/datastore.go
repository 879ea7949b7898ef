// Package db guarda o estado compartilhado entre requisições no PostgreSQL:
// cache de scans por commit, janela de rate limit e leitura de uso por plano.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lockwhz/ai-scan-service/internal/logger"
)

// Database é um wrapper fino em torno de *sql.DB para facilitar testes (sqlmock).
type Database struct {
	conn *sql.DB
}

func NewDatabase() *Database { return &Database{} }

// Connect abre conexão PostgreSQL usando lib/pq e valida com Ping.
func (d *Database) Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	start := time.Now()
	defer logger.Trace("DBConnect", start)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open conn: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	d.conn = db
	return db, nil
}

func (d *Database) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}
