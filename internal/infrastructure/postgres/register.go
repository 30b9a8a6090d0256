package postgres

import (
	"context"

	"github.com/creaturederby/derby/internal/domain/state"
	"github.com/creaturederby/derby/internal/metrics"
)

// casRegister implements state.Register as a single conditional UPDATE on a
// status column. The affected row count decides the winner.
type casRegister[S ~string] struct {
	db       dbtx
	table    string
	idColumn string
}

var _ state.Register[string] = casRegister[string]{}

func newRegister[S ~string](db dbtx, table, idColumn string) casRegister[S] {
	return casRegister[S]{db: db, table: table, idColumn: idColumn}
}

func (r casRegister[S]) Transition(ctx context.Context, id string, from, to S) (bool, error) {
	return r.TransitionWith(ctx, id, from, to)
}

// TransitionWith applies assigns in the same statement as the status change.
// Column names come from repository code, never from callers' input.
func (r casRegister[S]) TransitionWith(ctx context.Context, id string, from, to S, assigns ...state.Assign) (bool, error) {
	args := []interface{}{string(to)}
	set := "status=$1, updated_at=now()"
	for _, a := range assigns {
		args = append(args, a.Value)
		set += ", " + a.Column + "=$" + itoa(len(args))
	}
	args = append(args, id, string(from))
	query := "UPDATE " + r.table + " SET " + set +
		" WHERE " + r.idColumn + "=$" + itoa(len(args)-1) + " AND status=$" + itoa(len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	won := tag.RowsAffected() == 1
	metrics.CAS(r.table, string(to), won)
	return won, nil
}
