package writer

import (
	"bytes"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/pool"
)

// BuildJSONLines 构建JSON Lines格式数据（每行一个JSON对象，最后一行不带换行符）
func BuildJSONLines(batch [][]interface{}, columns []string) *bytes.Buffer {
	buf := pool.GetBuffer()
	if len(batch) == 0 {
		return buf
	}

	// 预估算大小：每行约200字节
	buf.Grow(len(batch) * 200)

	for i, row := range batch {
		buf.WriteByte('{')
		for j, col := range columns {
			if j >= len(row) {
				break
			}
			if j > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, col)
			buf.WriteByte(':')
			writeValue(buf, row[j])
		}
		buf.WriteByte('}')

		if i < len(batch)-1 {
			buf.WriteByte('\n')
		}
	}

	return buf
}

// writeValue 将值写入buffer，常见类型避免反射
func writeValue(buf *bytes.Buffer, val interface{}) {
	switch v := val.(type) {
	case string:
		writeString(buf, v)
	case int:
		buf.WriteString(strconv.Itoa(v))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case nil:
		buf.WriteString("null")
	default:
		data, err := sonic.Marshal(v)
		if err != nil {
			buf.WriteString("null")
			return
		}
		buf.Write(data)
	}
}

// writeString 写入转义后的JSON字符串
func writeString(buf *bytes.Buffer, s string) {
	data, err := sonic.Marshal(s)
	if err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Write(data)
}
