package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// StageColumn is a column of the temporary staging table.
type StageColumn struct {
	Name string
	Type string
}

// StageConfig describes a staged bulk insert. Rows are COPYed into a temp
// table shaped by Stage, then moved into Table with one INSERT ... SELECT
// whose select list is Select (one expression per entry in Columns).
//
// Staging lets columns with types pgx cannot COPY directly, such as PostGIS
// geometry, be loaded as bytea and converted server side.
type StageConfig struct {
	Table        string
	Columns      []string
	Stage        []StageColumn
	Select       []string
	ConflictKeys []string // optional; conflicting rows are skipped
}

func (c StageConfig) validate() error {
	if len(c.Stage) == 0 {
		return eris.New("db: stage: no staging columns specified")
	}
	if len(c.Columns) == 0 {
		return eris.New("db: stage: no target columns specified")
	}
	if len(c.Select) != len(c.Columns) {
		return eris.Errorf("db: stage: %d select expressions for %d columns", len(c.Select), len(c.Columns))
	}
	return nil
}

// StageInsert bulk-loads rows through a temp table inside one transaction and
// returns the number of rows inserted into the target.
func StageInsert(ctx context.Context, pool Pool, cfg StageConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: stage: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := stageTable(cfg.Table)
	defs := make([]string, len(cfg.Stage))
	names := make([]string, len(cfg.Stage))
	for i, c := range cfg.Stage {
		defs[i] = pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
		names[i] = c.Name
	}

	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP",
		pgx.Identifier{stage}.Sanitize(), strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: stage: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stage}, names, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: stage: COPY into temp table for %s", cfg.Table)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(cfg.Select, ", "),
		pgx.Identifier{stage}.Sanitize(),
	)
	if len(cfg.ConflictKeys) > 0 {
		insertSQL += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteAndJoin(cfg.ConflictKeys))
	}

	tag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: stage: insert into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: stage: commit tx")
	}
	return tag.RowsAffected(), nil
}

func stageTable(table string) string {
	return "_stage_" + strings.ReplaceAll(table, ".", "_")
}

// sanitizeTable handles schema-qualified names like "public.orders".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
