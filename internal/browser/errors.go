package browser

import "errors"

// Pool errors - returned during browser instance management
var (
	ErrPoolShutdown  = errors.New("pool is shutting down")
	ErrInstanceDead  = errors.New("browser instance is dead")
	ErrStartFailed   = errors.New("browser start failed")
	ErrRestartFailed = errors.New("browser restart failed")
)
