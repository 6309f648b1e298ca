package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Базовые ошибки. Только первые три пересекают синхронную границу (HTTP),
// остальные поглощаются асинхронной машиной саги.
var (
	ErrValidation           = errors.New("некорректные данные")
	ErrConflict             = errors.New("конфликт состояния")
	ErrNotFound             = errors.New("ресурс не найден")
	ErrTransientPersistence = errors.New("временная ошибка хранилища")
	ErrTransport            = errors.New("ошибка транспорта сообщений")
	ErrUnauthorized         = errors.New("не авторизован")
	ErrForbidden            = errors.New("доступ запрещен")
	ErrInternalServer       = errors.New("внутренняя ошибка сервера")
)

// Is и As реэкспортированы, чтобы пакет можно было импортировать вместо стандартного errors
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// AppendPrefix добавляет префикс к сообщению об ошибке
func AppendPrefix(err error, prefix string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", prefix, err)
}

// LogError логирует ошибку с контекстом
func LogError(err error, context string) {
	if err == nil {
		return
	}
	log.Error().Err(err).Str("context", context).Msg("ошибка")
}

// ErrorGroup представляет группу ошибок, собранных из разных операций
type ErrorGroup struct {
	errors []error
}

// NewErrorGroup создает новую группу ошибок
func NewErrorGroup() *ErrorGroup {
	return &ErrorGroup{
		errors: make([]error, 0),
	}
}

// Add добавляет ошибку в группу (игнорирует nil)
func (g *ErrorGroup) Add(err error) {
	if err != nil {
		g.errors = append(g.errors, err)
	}
}

// AddPrefix добавляет ошибку с префиксом в группу
func (g *ErrorGroup) AddPrefix(err error, prefix string) {
	if err != nil {
		g.errors = append(g.errors, AppendPrefix(err, prefix))
	}
}

// HasErrors проверяет, есть ли ошибки в группе
func (g *ErrorGroup) HasErrors() bool {
	return len(g.errors) > 0
}

// Error возвращает конкатенацию всех ошибок в группе
func (g *ErrorGroup) Error() string {
	var sb strings.Builder
	for i, err := range g.errors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap позволяет errors.Is находить ошибки внутри группы
func (g *ErrorGroup) Unwrap() []error {
	return g.errors
}
