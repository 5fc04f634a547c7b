// Package config loads component configuration from environment variables.
//
// Each component of the authorization service declares its own Config
// struct with env tags (quota.Defaults, postgres.Config, redisaudit.Config)
// and this package parses it, optionally seeding the process environment
// from .env files first. Every configuration type is parsed once and
// cached for the lifetime of the process.
//
//	var cfg postgres.Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
package config
