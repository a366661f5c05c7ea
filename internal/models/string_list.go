package models

import (
	"database/sql/driver"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringList массив строк: text[] в PostgreSQL, текстовый литерал массива в остальных СУБД
type StringList []string

// Value реализует driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan реализует sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	return (*pq.StringArray)(l).Scan(src)
}

// GormDataType общий тип для GORM
func (StringList) GormDataType() string {
	return "text[]"
}

// GormDBDataType тип колонки в зависимости от диалекта
func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Contains проверяет наличие значения
func (l StringList) Contains(v string) bool {
	for _, item := range l {
		if item == v {
			return true
		}
	}
	return false
}
