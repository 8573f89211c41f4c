// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/relabs-tech/campus/core/csql"
	"github.com/relabs-tech/campus/core/logger"
)

// sqlRepository stores the records of a resource in a postgres table with one
// column per field
type sqlRepository struct {
	db          *csql.DB
	rc          *ResourceConfiguration
	table       string
	selectQuery string
	insertQuery string
	upsertQuery string
	deleteQuery string
}

// SQLRepositories returns a factory for postgres backed repositories. With updateSchema,
// the tables are created if they do not exist yet.
func SQLRepositories(db *csql.DB, updateSchema bool) RepositoryFactory {
	return func(rc *ResourceConfiguration) (Repository, error) {
		return newSQLRepository(db, rc, updateSchema)
	}
}

func newSQLRepository(db *csql.DB, rc *ResourceConfiguration, updateSchema bool) (*sqlRepository, error) {
	r := &sqlRepository{
		db:    db,
		rc:    rc,
		table: db.Table(rc.Table),
	}

	columns := make([]string, len(rc.Fields))
	definitions := make([]string, len(rc.Fields))
	sets := make([]string, len(rc.Fields))
	for i, field := range rc.Fields {
		columns[i] = field.Column
		sets[i] = field.Column + " = EXCLUDED." + field.Column
		switch field.Type {
		case FieldTypeBoolean:
			definitions[i] = field.Column + " BOOLEAN NOT NULL"
		case FieldTypeDatetime:
			definitions[i] = field.Column + " TIMESTAMP NOT NULL"
		default:
			definitions[i] = field.Column + " VARCHAR NOT NULL"
		}
	}

	if updateSchema {
		createQuery := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGSERIAL PRIMARY KEY, %s);",
			r.table, strings.Join(definitions, ", "))
		logger.Default().Debugln("  create table:", createQuery)
		if _, err := db.Exec(createQuery); err != nil {
			return nil, r.wrap("create table", err)
		}
	}

	r.selectQuery = fmt.Sprintf("SELECT id, %s FROM %s", strings.Join(columns, ", "), r.table)
	r.insertQuery = fmt.Sprintf("INSERT INTO %s (%s) VALUES(%s) RETURNING id;",
		r.table, strings.Join(columns, ", "), parameterString(1, len(columns)))
	r.upsertQuery = fmt.Sprintf("INSERT INTO %s (id, %s) VALUES(%s) ON CONFLICT (id) DO UPDATE SET %s;",
		r.table, strings.Join(columns, ", "), parameterString(1, len(columns)+1), strings.Join(sets, ", "))
	r.deleteQuery = fmt.Sprintf("DELETE FROM %s WHERE id = $1;", r.table)
	return r, nil
}

// returns $first,...,$(first+n-1)
func parameterString(first, n int) string {
	parameters := make([]string, n)
	for i := range parameters {
		parameters[i] = "$" + strconv.Itoa(first+i)
	}
	return strings.Join(parameters, ",")
}

// wrap adds the table and, for postgres errors, the error condition to err
func (r *sqlRepository) wrap(operation string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s %s: postgres %s (%s): %w", operation, r.table, pqErr.Code.Name(), pqErr.Code, err)
	}
	return fmt.Errorf("%s %s: %w", operation, r.table, err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *sqlRepository) scan(row scanner) (Record, error) {
	record := r.rc.NewRecord()
	values := make([]interface{}, len(r.rc.Fields)+1)
	values[0] = &record.ID
	for i, field := range r.rc.Fields {
		switch field.Type {
		case FieldTypeBoolean:
			values[i+1] = new(bool)
		case FieldTypeDatetime:
			values[i+1] = new(time.Time)
		default:
			values[i+1] = new(string)
		}
	}
	if err := row.Scan(values...); err != nil {
		return record, err
	}
	for i, field := range r.rc.Fields {
		switch v := values[i+1].(type) {
		case *bool:
			record.Values[field.Name] = *v
		case *time.Time:
			record.Values[field.Name] = fromSQLValue(*v)
		case *string:
			record.Values[field.Name] = *v
		}
	}
	return record, nil
}

func (r *sqlRepository) arguments(record Record) []interface{} {
	arguments := make([]interface{}, len(r.rc.Fields))
	for i, field := range r.rc.Fields {
		arguments[i] = sqlValue(record.Values[field.Name])
	}
	return arguments
}

func (r *sqlRepository) FindAll(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, r.selectQuery+";")
	if err != nil {
		return nil, r.wrap("select", err)
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, r.wrap("scan", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, r.wrap("select", err)
	}
	return records, nil
}

func (r *sqlRepository) FindByID(ctx context.Context, id int64) (Record, bool, error) {
	record, err := r.scan(r.db.QueryRowContext(ctx, r.selectQuery+" WHERE id = $1;", id))
	if err == csql.ErrNoRows {
		return record, false, nil
	}
	if err != nil {
		return record, false, r.wrap("select", err)
	}
	return record, true, nil
}

func (r *sqlRepository) Save(ctx context.Context, record Record) (Record, error) {
	arguments := r.arguments(record)
	if record.ID == 0 {
		if err := r.db.QueryRowContext(ctx, r.insertQuery, arguments...).Scan(&record.ID); err != nil {
			return record, r.wrap("insert", err)
		}
		return record, nil
	}
	if _, err := r.db.ExecContext(ctx, r.upsertQuery, append([]interface{}{record.ID}, arguments...)...); err != nil {
		return record, r.wrap("upsert", err)
	}
	return record, nil
}

func (r *sqlRepository) Delete(ctx context.Context, record Record) error {
	if _, err := r.db.ExecContext(ctx, r.deleteQuery, record.ID); err != nil {
		return r.wrap("delete", err)
	}
	return nil
}
