package database

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS data_servers (
		id                BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		url               VARCHAR(255) NOT NULL,
		name              VARCHAR(100) NOT NULL,
		location          VARCHAR(100) NOT NULL DEFAULT '',
		status            VARCHAR(16)  NOT NULL DEFAULT 'active',
		available         TINYINT(1)   NOT NULL DEFAULT 1,
		user_count        INT          NOT NULL DEFAULT 0,
		max_users         INT          NOT NULL DEFAULT 1000,
		priority          INT          NOT NULL DEFAULT 0,
		health_status     VARCHAR(16)  NOT NULL DEFAULT 'unknown',
		last_health_check DATETIME     NULL,
		created_at        DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at        DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_data_servers_url (url)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS users (
		id                     BIGINT AUTO_INCREMENT PRIMARY KEY,
		username               VARCHAR(64)  NOT NULL,
		email                  VARCHAR(255) NOT NULL DEFAULT '',
		password_hash          VARCHAR(255) NOT NULL DEFAULT '',
		is_self_hosted         TINYINT(1)   NOT NULL DEFAULT 0,
		subscription_status    VARCHAR(16)  NOT NULL DEFAULT 'trial',
		subscription_expire_at DATETIME     NULL,
		ext_platform           VARCHAR(32)  NOT NULL DEFAULT '',
		ext_id                 VARCHAR(128) NOT NULL DEFAULT '',
		ext_last_verified_at   DATETIME     NULL,
		ext_last_refreshed_at  DATETIME     NULL,
		plan_name              VARCHAR(64)  NOT NULL DEFAULT '',
		word_limit             INT          NOT NULL DEFAULT 0,
		word_count             INT          NOT NULL DEFAULT 0,
		data_server            VARCHAR(255) NOT NULL DEFAULT '',
		created_at             DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at             DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_username (username),
		KEY idx_users_data_server (data_server)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the relational tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
