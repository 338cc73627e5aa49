/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import "fmt"

// StorageConfig describes how to construct a Store. Credentials arrive
// directly as plain fields sourced from the process config/environment
// (§6) rather than a Kubernetes Secret reference, since this service has
// no cluster API to resolve secrets against.
type StorageConfig struct {
	Type string // "sqlite", "postgres", or "mysql"

	SQLitePath string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // postgres only

	Pool ConnectionPoolConfig
}

// NewStore builds a Store for the configured dialect, mirroring the
// teacher's dialect-switch factory but resolving credentials straight
// from config instead of a secret lookup.
func NewStore(cfg StorageConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = "/data/monitorcore.db"
		}
		dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
		return NewGormStoreWithPool("sqlite", dsn, cfg.Pool)

	case "postgres":
		if cfg.Host == "" || cfg.Database == "" {
			return nil, fmt.Errorf("postgres storage requires host and database")
		}
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			cfg.Host, port, cfg.Database, cfg.User, cfg.Password, sslMode)
		return NewGormStoreWithPool("postgres", dsn, cfg.Pool)

	case "mysql":
		if cfg.Host == "" || cfg.Database == "" {
			return nil, fmt.Errorf("mysql storage requires host and database")
		}
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, port, cfg.Database)
		return NewGormStoreWithPool("mysql", dsn, cfg.Pool)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
