package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shaiso/Conveyor/internal/domain"
)

// SQLQueryProcessor — читающий запрос к PostgreSQL.
//
// Требует привилегию sql_query. Допускается ровно один SELECT
// (или WITH ... SELECT); строки результата кодируются в JSON массив
// объектов, ключи — имена колонок.
type SQLQueryProcessor struct{}

// NewSQLQueryProcessor создаёт новый SQLQueryProcessor.
func NewSQLQueryProcessor() *SQLQueryProcessor {
	return &SQLQueryProcessor{}
}

// Kind возвращает вид процессора.
func (p *SQLQueryProcessor) Kind() string {
	return domain.KindSQLQuery
}

// Privilege возвращает необходимую привилегию.
func (p *SQLQueryProcessor) Privilege() string {
	return domain.PrivilegeSQLQuery
}

// Validate проверяет адрес подключения, форму запроса и параметры.
func (p *SQLQueryProcessor) Validate(cfg domain.Processor) error {
	c := cfg.SQLQuery
	if c == nil {
		return fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindSQLQuery)
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: %s: invalid url: %v", ErrInvalidConfig, domain.KindSQLQuery, err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("%w: %s: unsupported url scheme %q", ErrInvalidConfig, domain.KindSQLQuery, u.Scheme)
	}

	if err := validateQuery(c.Query); err != nil {
		return err
	}

	for i, param := range c.Parameters {
		if param.Value() == nil {
			return fmt.Errorf("%w: %s: parameter %d must set exactly one of text, int, bool",
				ErrInvalidConfig, domain.KindSQLQuery, i+1)
		}
	}

	return nil
}

// validateQuery допускает единственный читающий запрос.
func validateQuery(query string) error {
	stmt := strings.TrimSpace(query)
	if stmt == "" {
		return fmt.Errorf("%w: %s: query is required", ErrInvalidConfig, domain.KindSQLQuery)
	}

	stmt = strings.TrimSuffix(stmt, ";")
	if strings.Contains(stmt, ";") {
		return fmt.Errorf("%w: %s: query must contain a single statement", ErrInvalidConfig, domain.KindSQLQuery)
	}

	head := strings.ToUpper(stmt)
	if !strings.HasPrefix(head, "SELECT") && !strings.HasPrefix(head, "WITH") {
		return fmt.Errorf("%w: %s: only read queries are allowed", ErrInvalidConfig, domain.KindSQLQuery)
	}

	return nil
}

// allowedColumnTypes — типы колонок, которые разрешено возвращать клиенту.
var allowedColumnTypes = map[uint32]bool{
	pgtype.BoolOID:    true,
	pgtype.Int4OID:    true,
	pgtype.JSONOID:    true,
	pgtype.JSONBOID:   true,
	pgtype.TextOID:    true,
	pgtype.VarcharOID: true,
}

// Execute выполняет запрос на свежем подключении.
func (p *SQLQueryProcessor) Execute(ctx context.Context, req *Request) (*Response, error) {
	cfg := req.Config.SQLQuery
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s: config is required", ErrInvalidConfig, domain.KindSQLQuery)
	}
	if err := validateQuery(cfg.Query); err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	args := make([]any, 0, len(cfg.Parameters))
	for _, param := range cfg.Parameters {
		args = append(args, param.Value())
	}

	rows, err := conn.Query(ctx, cfg.Query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	for _, f := range fields {
		if !allowedColumnTypes[f.DataTypeOID] {
			return nil, fmt.Errorf("unsupported type of column %q", f.Name)
		}
	}

	var result []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	if len(result) == 0 {
		return EmptyResponse(), nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	return TextResponse(string(encoded)), nil
}
