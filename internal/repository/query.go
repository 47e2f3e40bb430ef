package repository

import (
	"strings"

	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// applyPagination 应用分页参数，page 从 1 开始
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}

// dbDialectName 数据库方言名称，无法识别时按 sqlite 处理
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	if name := strings.ToLower(strings.TrimSpace(db.Dialector.Name())); name != "" {
		return name
	}
	return "sqlite"
}

// searchCondition 构建多列模糊搜索条件（任一列命中即可）
//
// 搜索词中的 % 和 _ 按字面匹配，utm_campaign 之类的取值常含下划线。
// postgres 使用 ILIKE，sqlite 的 LIKE 对 ASCII 本身不区分大小写。
func searchCondition(dialect string, columns []string, term string) (string, []interface{}) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", nil
	}
	operator := "LIKE"
	if dialect == "postgres" || dialect == "postgresql" {
		operator = "ILIKE"
	}
	pattern := "%" + likeEscaper.Replace(term) + "%"

	parts := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		column = strings.TrimSpace(column)
		if column == "" {
			continue
		}
		parts = append(parts, column+" "+operator+` ? ESCAPE '\'`)
		args = append(args, pattern)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}
