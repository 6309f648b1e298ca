package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/director74/macro_saga/macro-service/internal/entity"
	"github.com/director74/macro_saga/pkg/database"
	apperrors "github.com/director74/macro_saga/pkg/errors"
)

// MacroRepository хранилище макросов. Методы работают в транзакции из контекста, если она есть.
type MacroRepository struct {
	db *gorm.DB
}

func NewMacroRepository(db *gorm.DB) *MacroRepository {
	return &MacroRepository{db: db}
}

// codesTaken тройка кодов уже принадлежит другому макросу
func codesTaken() error {
	return apperrors.NewConflictError("макрос с такой комбинацией кодов уже существует")
}

// Create работает в точке сохранения, чтобы нарушение уникальности не ломало транзакцию вызывающего
func (r *MacroRepository) Create(ctx context.Context, macro *entity.Macro) error {
	err := database.Nested(ctx, r.db, func(conn *gorm.DB) error {
		return conn.Create(macro).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return codesTaken()
		}
		return fmt.Errorf("ошибка создания макроса: %w", err)
	}
	return nil
}

func (r *MacroRepository) GetByID(ctx context.Context, macroID string) (*entity.Macro, error) {
	var macro entity.Macro
	if err := database.Conn(ctx, r.db).Where("macro_id = ?", macroID).Take(&macro).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Макрос", macroID)
		}
		return nil, fmt.Errorf("ошибка получения макроса %s: %w", macroID, err)
	}
	return &macro, nil
}

// Update сохраняет изменяемые поля. createUser и createDate не трогаются.
func (r *MacroRepository) Update(ctx context.Context, macro *entity.Macro) error {
	var affected int64
	err := database.Nested(ctx, r.db, func(conn *gorm.DB) error {
		result := conn.Model(&entity.Macro{}).
			Where("macro_id = ?", macro.MacroID).
			Updates(map[string]interface{}{
				"macro_code":             macro.MacroCode,
				"macro_type_code":        macro.MacroTypeCode,
				"business_use_type_code": macro.BusinessUseTypeCode,
				"macro_text":             macro.MacroText,
				"update_user":            macro.UpdateUser,
				"update_date":            macro.UpdateDate,
			})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return codesTaken()
		}
		return fmt.Errorf("ошибка обновления макроса %s: %w", macro.MacroID, err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("Макрос", macro.MacroID)
	}
	return nil
}

func (r *MacroRepository) List(ctx context.Context, filter entity.MacroFilter) ([]entity.Macro, error) {
	query := database.Conn(ctx, r.db)
	if filter.BusinessUseTypeCode != "" {
		query = query.Where("business_use_type_code = ?", filter.BusinessUseTypeCode)
	}
	if filter.MacroTypeCode != "" {
		query = query.Where("macro_type_code = ?", filter.MacroTypeCode)
	}

	var macros []entity.Macro
	if err := query.Order("macro_code").Find(&macros).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения списка макросов: %w", err)
	}
	return macros, nil
}

// ExistsByCodes проверяет, занята ли тройка кодов. Макрос excludeID не учитывается,
// чтобы изменение без смены кодов не считалось конфликтом с самим собой.
func (r *MacroRepository) ExistsByCodes(ctx context.Context, businessUseTypeCode, macroTypeCode, macroCode, excludeID string) (bool, error) {
	query := database.Conn(ctx, r.db).Model(&entity.Macro{}).
		Where("business_use_type_code = ? AND macro_type_code = ? AND macro_code = ?", businessUseTypeCode, macroTypeCode, macroCode)
	if excludeID != "" {
		query = query.Where("macro_id <> ?", excludeID)
	}

	var count int64
	err := query.Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ошибка проверки уникальности макроса: %w", err)
	}
	return count > 0, nil
}
