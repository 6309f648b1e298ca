package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor выполняет функцию внутри транзакции. Репозитории, получившие
// контекст из fn, работают в той же транзакции через Conn.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// GormTransactor реализация Transactor поверх gorm
type GormTransactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

// WithinTransaction всегда открывает новую транзакцию, даже если в ctx уже есть другая:
// каждый шаг саги фиксируется независимо от остальных.
func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn возвращает транзакцию из контекста или базовое соединение
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// InTransaction сообщает, выполняется ли код внутри транзакции
func InTransaction(ctx context.Context) bool {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok && tx != nil
}

// Nested выполняет fn в точке сохранения, если в ctx уже есть транзакция.
// Ошибка fn откатывает только точку сохранения, внешняя транзакция остается рабочей.
func Nested(ctx context.Context, db *gorm.DB, fn func(conn *gorm.DB) error) error {
	conn := Conn(ctx, db)
	if !InTransaction(ctx) {
		return fn(conn)
	}
	return conn.Transaction(fn)
}
