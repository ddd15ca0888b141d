package item

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkflow/pkg/batch/core/tx"
	chunk "github.com/tigerroll/chunkflow/pkg/batch/engine/step/item"
	"github.com/tigerroll/chunkflow/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkflow/pkg/batch/infrastructure/repository/inmemory"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/chunkflow/pkg/batch/test"
)

type player struct {
	ID   int
	Name string
}

func playerMapper(_ int, fields []string) (player, error) {
	if len(fields) != 2 {
		return player{}, errors.New("want id,name")
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return player{}, err
	}
	return player{ID: id, Name: fields[1]}, nil
}

func playerFields(p player) []string { return []string{strconv.Itoa(p.ID), p.Name} }

func newResources() *resource.Resources { return resource.New(&config.Config{}) }

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll[T any](t *testing.T, r interface {
	Read(context.Context) (T, bool, error)
}) []T {
	t.Helper()
	var out []T
	for {
		item, more, err := r.Read(context.Background())
		require.NoError(t, err)
		if !more {
			return out
		}
		out = append(out, item)
	}
}

func TestFlatFileItemReader_SkipsHeaderAndMapsLines(t *testing.T) {
	path := writeFile(t, "id;name\n1;ann\n2;bob\n3;cy\n")
	r := NewFlatFileItemReader("players", newResources(), path, playerMapper, WithDelimiter(';'), WithLinesToSkip(1))
	require.NoError(t, r.Open(context.Background(), model.NewExecutionContext()))
	defer r.Close(context.Background())

	assert.Equal(t, []player{{1, "ann"}, {2, "bob"}, {3, "cy"}}, readAll[player](t, r))
}

func TestFlatFileItemReader_ResumesAfterCommittedCount(t *testing.T) {
	path := writeFile(t, "1,ann\n2,bob\n3,cy\n4,dan\n")
	res := newResources()
	ctx := context.Background()

	first := NewFlatFileItemReader("players", res, path, playerMapper)
	ec := model.NewExecutionContext()
	require.NoError(t, first.Open(ctx, ec))
	_, _, err := first.Read(ctx)
	require.NoError(t, err)
	_, _, err = first.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Update(ctx, ec))
	require.NoError(t, first.Close(ctx))

	second := NewFlatFileItemReader("players", res, path, playerMapper)
	require.NoError(t, second.Open(ctx, ec))
	defer second.Close(ctx)
	assert.Equal(t, []player{{3, "cy"}, {4, "dan"}}, readAll[player](t, second))
}

func TestFlatFileItemReader_MappingFailureIsSkippable(t *testing.T) {
	path := writeFile(t, "1,ann\nbroken\n3,cy\n")
	r := NewFlatFileItemReader("players", newResources(), path, playerMapper)
	ctx := context.Background()
	require.NoError(t, r.Open(ctx, model.NewExecutionContext()))
	defer r.Close(ctx)

	_, _, err := r.Read(ctx)
	require.NoError(t, err)
	_, more, err := r.Read(ctx)
	require.Error(t, err)
	assert.True(t, more)
	var be *exception.BatchError
	require.ErrorAs(t, err, &be)
	assert.True(t, be.IsSkippable())
	assert.Contains(t, err.Error(), "line 2")

	p, more, err := r.Read(ctx)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, player{3, "cy"}, p)
}

func TestFlatFileItemReader_MissingResourceFailsOpen(t *testing.T) {
	r := NewFlatFileItemReader("players", newResources(), filepath.Join(t.TempDir(), "none.csv"), playerMapper)
	assert.Error(t, r.Open(context.Background(), model.NewExecutionContext()))
}

func TestFlatFileItemWriter_WritesOnlyCommittedChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "players.csv")
	w := NewFlatFileItemWriter("out", newResources(), path, playerFields, WithHeader("id", "name"))
	ctx := context.Background()
	txm := tx.NewResourcelessTransactionManager()
	require.NoError(t, w.Open(ctx, model.NewExecutionContext()))

	committed, err := txm.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Write(tx.WithTx(ctx, committed), []player{{1, "ann"}, {2, "bob"}}))
	require.NoError(t, txm.Commit(committed))

	rolledBack, err := txm.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, w.Write(tx.WithTx(ctx, rolledBack), []player{{3, "cy"}}))
	require.NoError(t, txm.Rollback(rolledBack))
	require.NoError(t, w.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ann\n2,bob\n", string(data))
}

func TestFlatFileItemWriter_RestartAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.csv")
	res := newResources()
	ctx := context.Background()
	ec := model.NewExecutionContext()

	first := NewFlatFileItemWriter("out", res, path, playerFields, WithHeader("id", "name"))
	require.NoError(t, first.Open(ctx, ec))
	require.NoError(t, first.Write(ctx, []player{{1, "ann"}}))
	require.NoError(t, first.Update(ctx, ec))
	require.NoError(t, first.Close(ctx))

	second := NewFlatFileItemWriter("out", res, path, playerFields, WithHeader("id", "name"))
	require.NoError(t, second.Open(ctx, ec))
	require.NoError(t, second.Write(ctx, []player{{2, "bob"}}))
	require.NoError(t, second.Close(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ann\n2,bob\n", string(data))
}

func TestFlatFile_ChunkStepCopiesAndSkipsBadLines(t *testing.T) {
	in := writeFile(t, "1,ann\n2,bob\nbad\n4,dan\n5,eve\n")
	out := filepath.Join(t.TempDir(), "copy.csv")
	res := newResources()
	repo := inmemory.NewInMemoryJobRepository()
	je := testutil.NewTestJobExecution(t, repo, "copyJob", model.NewJobParameters())
	se := testutil.NewTestStepExecution(t, repo, je, "copy")

	step := chunk.NewChunkStep[player, player]("copy",
		NewFlatFileItemReader("in", res, in, playerMapper),
		nil,
		NewFlatFileItemWriter("out", res, out, playerFields),
		2, repo, nil,
		chunk.WithSkipPolicy(skip.NewLimitPolicy(1, nil)),
	)
	require.NoError(t, step.Execute(context.Background(), je, se))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "1,ann\n2,bob\n4,dan\n5,eve\n", string(data))
	assert.Equal(t, 4, se.WriteCount)
	assert.Equal(t, 1, se.ReadSkipCount)
	n, ok := se.ExecutionContext.GetInt("in.read.count")
	require.True(t, ok)
	assert.Equal(t, 5, n)
}
