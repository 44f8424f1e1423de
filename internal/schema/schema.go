package schema

import (
	"fmt"
	"strings"
)

// 元数据列，json模式下这些列从消息本身取值而不是从value中提取
const (
	ColumnTopic     = "__topic"
	ColumnPartition = "__partition"
	ColumnOffset    = "__offset"
	ColumnKey       = "__key"
	ColumnTimestamp = "__timestamp"
)

// raw模式下key/value列的编码方式
const (
	EncodingUTF8   = "utf8"
	EncodingBase64 = "base64"
)

// Column 列定义
type Column struct {
	Name string
	Type string
}

// Schema 表结构
type Schema struct {
	Columns []Column
	// 字段名到索引的映射，加速查找
	fieldIndex map[string]int
}

// NewSchema 创建Schema
func NewSchema(columns []Column) *Schema {
	fieldIndex := make(map[string]int, len(columns))
	for i, col := range columns {
		fieldIndex[col.Name] = i
	}

	return &Schema{
		Columns:    columns,
		fieldIndex: fieldIndex,
	}
}

// RawSchema raw模式的固定表结构
//
// key/value不是合法UTF-8时以base64写出，key_encoding/value_encoding记录编码方式。
func RawSchema() *Schema {
	return NewSchema([]Column{
		{Name: "topic", Type: "VARCHAR"},
		{Name: "partition", Type: "INT"},
		{Name: "offset", Type: "BIGINT"},
		{Name: "key", Type: "STRING"},
		{Name: "key_encoding", Type: "VARCHAR"},
		{Name: "value", Type: "STRING"},
		{Name: "value_encoding", Type: "VARCHAR"},
		{Name: "timestamp", Type: "BIGINT"},
	})
}

// GetFieldIndex 获取字段索引
func (s *Schema) GetFieldIndex(fieldName string) (int, bool) {
	idx, ok := s.fieldIndex[fieldName]
	return idx, ok
}

// ColumnCount 返回列数
func (s *Schema) ColumnCount() int {
	return len(s.Columns)
}

// ColumnNames 返回列名
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		names[i] = col.Name
	}
	return names
}

// String 返回Schema的字符串表示，最多显示前6列
func (s *Schema) String() string {
	var sb strings.Builder
	sb.WriteString("Schema{")
	for i, col := range s.Columns {
		if i >= 6 {
			sb.WriteString(fmt.Sprintf(", ... (%d more)", len(s.Columns)-6))
			break
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s:%s", col.Name, col.Type))
	}
	sb.WriteString("}")
	return sb.String()
}

// MapDorisType 映射Doris数据类型到内部类型
func MapDorisType(dorisType string) string {
	// 去除长度等信息
	baseType := strings.TrimSpace(strings.ToUpper(strings.Split(dorisType, "(")[0]))

	switch baseType {
	case "TINYINT", "SMALLINT", "INT", "INTEGER":
		return "INT"
	case "BIGINT", "LARGEINT":
		return "BIGINT"
	case "BOOLEAN", "BOOL":
		return "BOOLEAN"
	case "FLOAT", "DOUBLE", "DECIMAL", "DECIMALV3":
		return "FLOAT"
	case "CHAR", "VARCHAR":
		return "VARCHAR"
	case "DATE", "DATEV2":
		return "DATE"
	case "DATETIME", "DATETIMEV2", "TIMESTAMP":
		return "DATETIME"
	default:
		return "STRING"
	}
}

// GetZeroValue 获取类型的零值
func GetZeroValue(dataType string) interface{} {
	switch dataType {
	case "BIGINT", "INT":
		return int64(0)
	case "BOOLEAN":
		return false
	case "FLOAT":
		return float64(0)
	case "VARCHAR", "STRING", "DATE", "DATETIME":
		return ""
	default:
		return nil
	}
}
