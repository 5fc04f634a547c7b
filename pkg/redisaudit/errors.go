package redisaudit

import "errors"

var (
	ErrFailedToParseConnString = errors.New("redisaudit: failed to parse redis connection string")
	ErrRedisNotReady           = errors.New("redisaudit: redis did not become ready in time")
)
