package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/kafka-range-reader/kafka-range-reader/internal/config"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/errors"
	"github.com/kafka-range-reader/kafka-range-reader/pkg/logger"
	"go.uber.org/zap"
)

// Fetcher 通过MySQL协议获取Doris表结构
type Fetcher struct {
	cfg config.DorisConfig
}

// NewFetcher 创建Fetcher
func NewFetcher(cfg config.DorisConfig) *Fetcher {
	return &Fetcher{cfg: cfg}
}

// dsn 使用第一个FE节点的查询端口
func (f *Fetcher) dsn() string {
	host := strings.Split(f.cfg.FEHosts[0], ":")[0]
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=10s",
		f.cfg.User, f.cfg.Password, host, f.cfg.QueryPort, f.cfg.Database)
}

// FetchFromDoris DESCRIBE目标表
func (f *Fetcher) FetchFromDoris(ctx context.Context) (*Schema, error) {
	db, err := sql.Open("mysql", f.dsn())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDorisConnect, "failed to connect to doris", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDorisConnect, "failed to ping doris", err)
	}

	return describe(ctx, db, f.cfg.Database, f.cfg.Table)
}

// describe 执行DESCRIBE并解析列
func describe(ctx context.Context, db *sql.DB, database, table string) (*Schema, error) {
	query := fmt.Sprintf("DESCRIBE `%s`.`%s`", database, table)
	logger.Debug("executing describe query", zap.String("query", query))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDorisQuery, "failed to describe table", err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var field, dataType, null, key, defaultVal, extra sql.NullString
		if err := rows.Scan(&field, &dataType, &null, &key, &defaultVal, &extra); err != nil {
			return nil, errors.Wrap(errors.ErrCodeDorisQuery, "failed to scan row", err)
		}
		if !field.Valid || !dataType.Valid {
			continue
		}
		columns = append(columns, Column{
			Name: field.String,
			Type: MapDorisType(dataType.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDorisQuery, "error iterating rows", err)
	}
	if len(columns) == 0 {
		return nil, errors.Newf(errors.ErrCodeDorisQuery, "no columns found in %s.%s", database, table)
	}

	s := NewSchema(columns)
	logger.Info("schema fetched from doris",
		zap.String("table", database+"."+table),
		zap.String("schema", s.String()),
	)
	return s, nil
}

// FetchFromConfig 从配置获取表结构
func FetchFromConfig(cfg config.ManualSchemaConfig) (*Schema, error) {
	if len(cfg.Columns) == 0 {
		return nil, errors.New(errors.ErrCodeConfigValidate, "no columns in manual schema config")
	}

	columns := make([]Column, len(cfg.Columns))
	for i, col := range cfg.Columns {
		columns[i] = Column{Name: col.Name, Type: strings.ToUpper(col.Type)}
	}
	return NewSchema(columns), nil
}

// NewMapperFromConfig 按schema.mode创建映射器
func NewMapperFromConfig(ctx context.Context, cfg *config.Config) (*Mapper, error) {
	switch cfg.Schema.Mode {
	case "raw":
		return NewRawMapper(), nil
	case "manual":
		s, err := FetchFromConfig(cfg.Schema.Manual)
		if err != nil {
			return nil, err
		}
		return NewJSONMapper(s), nil
	case "auto":
		s, err := NewFetcher(cfg.Doris).FetchFromDoris(ctx)
		if err != nil {
			return nil, err
		}
		return NewJSONMapper(s), nil
	default:
		return nil, errors.Newf(errors.ErrCodeConfigValidate, "unknown schema mode %q", cfg.Schema.Mode)
	}
}
