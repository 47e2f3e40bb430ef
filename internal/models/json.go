package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON 通用 JSON 对象列
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	body, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(body), nil
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = make(JSON)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if len(raw) == 0 {
		*j = make(JSON)
		return nil
	}
	return json.Unmarshal(raw, j)
}

// JSONFromValue 将结构体转换为 JSON 列
func JSONFromValue(value interface{}) (JSON, error) {
	body, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	result := make(JSON)
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Decode 将 JSON 列解码到目标结构体，已有字段作为默认值保留
func (j JSON) Decode(dest interface{}) error {
	if len(j) == 0 {
		return nil
	}
	body, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}
