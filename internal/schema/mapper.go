package schema

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"

	"github.com/kafka-range-reader/kafka-range-reader/internal/consumer"
	"github.com/kafka-range-reader/kafka-range-reader/internal/metrics"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

// Mapper 消息到Row的映射器
type Mapper struct {
	schema *Schema
	raw    bool
}

// NewRawMapper 创建raw模式映射器，每条消息映射为RawSchema的列
func NewRawMapper() *Mapper {
	return &Mapper{schema: RawSchema(), raw: true}
}

// NewJSONMapper 创建json模式映射器，按schema从value中提取字段
func NewJSONMapper(schema *Schema) *Mapper {
	return &Mapper{schema: schema}
}

// MapMessage 将消息映射为Row
func (m *Mapper) MapMessage(msg *consumer.Message) ([]interface{}, error) {
	if m.raw {
		key, keyEncoding := EncodeBytes(msg.Key)
		value, valueEncoding := EncodeBytes(msg.Value)
		return []interface{}{
			msg.Topic,
			int64(msg.Partition),
			msg.Offset,
			key,
			keyEncoding,
			value,
			valueEncoding,
			msg.Timestamp,
		}, nil
	}

	if len(msg.Value) > 0 && !sonic.Valid(msg.Value) {
		return nil, errors.Newf(errors.ErrCodeFieldMapping, "value at offset %d is not valid json", msg.Offset)
	}

	row := make([]interface{}, m.schema.ColumnCount())
	for i, col := range m.schema.Columns {
		if v, ok := metadataValue(msg, col.Name); ok {
			row[i] = v
			continue
		}

		// 使用sonic.Get()直接提取字段，无需完整解析
		node, err := sonic.Get(msg.Value, col.Name)
		if err != nil || !node.Exists() {
			row[i] = GetZeroValue(col.Type)
			continue
		}

		value, err := extractValue(node, col.Type)
		if err != nil {
			logger.Warn("field type conversion failed, using zero value",
				zap.String("field", col.Name),
				zap.String("type", col.Type),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			metrics.FieldTypeConversionErrors.WithLabelValues(col.Name, col.Type).Inc()
			row[i] = GetZeroValue(col.Type)
			continue
		}
		row[i] = value
	}

	return row, nil
}

// EncodeBytes 合法UTF-8原样返回，否则返回base64编码，第二个返回值为编码方式
func EncodeBytes(b []byte) (string, string) {
	if utf8.Valid(b) {
		return string(b), EncodingUTF8
	}
	return base64.StdEncoding.EncodeToString(b), EncodingBase64
}

// DecodeBytes EncodeBytes的逆操作
func DecodeBytes(s, encoding string) ([]byte, error) {
	switch encoding {
	case EncodingUTF8:
		return []byte(s), nil
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, errors.Newf(errors.ErrCodeTypeConvert, "unknown encoding %q", encoding)
	}
}

// metadataValue 元数据列取值
func metadataValue(msg *consumer.Message, column string) (interface{}, bool) {
	switch column {
	case ColumnTopic:
		return msg.Topic, true
	case ColumnPartition:
		return int64(msg.Partition), true
	case ColumnOffset:
		return msg.Offset, true
	case ColumnKey:
		key, _ := EncodeBytes(msg.Key)
		return key, true
	case ColumnTimestamp:
		return msg.Timestamp, true
	default:
		return nil, false
	}
}

// extractValue 提取并转换值
func extractValue(node ast.Node, dataType string) (interface{}, error) {
	switch dataType {
	case "INT", "BIGINT":
		val, err := node.Int64()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTypeConvert, "failed to convert to int", err)
		}
		return val, nil

	case "BOOLEAN":
		val, err := node.Bool()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTypeConvert, "failed to convert to boolean", err)
		}
		return val, nil

	case "FLOAT":
		val, err := node.Float64()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTypeConvert, "failed to convert to float", err)
		}
		return val, nil

	default:
		// 非字符串节点保留原始JSON
		if node.TypeSafe() != ast.V_STRING {
			raw, err := node.Raw()
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeTypeConvert, "failed to read raw value", err)
			}
			return raw, nil
		}
		val, err := node.String()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeTypeConvert, "failed to convert to string", err)
		}
		return val, nil
	}
}

// GetSchema 获取Schema
func (m *Mapper) GetSchema() *Schema {
	return m.schema
}
