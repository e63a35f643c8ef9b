package database

import (
	"database/sql"
)

type PgCourseChatRepository struct {
	conn *sql.DB
}

func NewPgCourseChatRepository(dsn string) (*PgCourseChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgCourseChatRepository{conn: db}, nil
}

func (db *PgCourseChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgCourseChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
