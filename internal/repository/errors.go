package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrChatClosed — чат уже не active (сделка заключена или отменена).
	ErrChatClosed = errors.New("chat is not active")
)

type rowScanner interface {
	Scan(dest ...any) error
}
