package item

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

func TestRegister_FlatFileComponentsFromProperties(t *testing.T) {
	registry := support.NewComponentRegistry()
	Register(registry, newResources())
	cfg := &config.Config{}
	ctx := context.Background()

	in := writeFile(t, "name\tscore\nann\t3\nbob\t5\n")
	out := filepath.Join(t.TempDir(), "out.txt")

	buildReader, err := registry.Reader(FlatFileReaderRef)
	require.NoError(t, err)
	r, err := buildReader(cfg, map[string]string{"resource": in, "delimiter": `\t`, "linesToSkip": "1"})
	require.NoError(t, err)

	buildWriter, err := registry.Writer(FlatFileWriterRef)
	require.NoError(t, err)
	w, err := buildWriter(cfg, map[string]string{"resource": out, "delimiter": "|", "header": "who,points"})
	require.NoError(t, err)

	ec := model.NewExecutionContext()
	require.NoError(t, r.(port.ItemStream).Open(ctx, ec))
	require.NoError(t, w.(port.ItemStream).Open(ctx, ec))
	items := readAll[any](t, r)
	require.NoError(t, w.Write(ctx, items))
	require.NoError(t, r.(port.ItemStream).Close(ctx))
	require.NoError(t, w.(port.ItemStream).Close(ctx))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "who|points\nann|3\nbob|5\n", string(data))
}

func TestRegister_RejectsBadProperties(t *testing.T) {
	registry := support.NewComponentRegistry()
	Register(registry, newResources())

	buildReader, err := registry.Reader(FlatFileReaderRef)
	require.NoError(t, err)
	_, err = buildReader(&config.Config{}, map[string]string{})
	assert.Error(t, err, "resource is required")
	_, err = buildReader(&config.Config{}, map[string]string{"resource": "x.csv", "delimiter": ";;"})
	assert.Error(t, err)
}

func TestRegister_ListReaderAndPassThrough(t *testing.T) {
	registry := support.NewComponentRegistry()
	Register(registry, newResources())

	buildReader, err := registry.Reader(ListReaderRef)
	require.NoError(t, err)
	r, err := buildReader(&config.Config{}, map[string]string{"items": "a,b,c"})
	require.NoError(t, err)

	buildProcessor, err := registry.Processor(PassThroughProcessorRef)
	require.NoError(t, err)
	p, err := buildProcessor(&config.Config{}, nil)
	require.NoError(t, err)

	var out []any
	for _, item := range readAll[any](t, r) {
		v, filtered, err := p.Process(context.Background(), item)
		require.NoError(t, err)
		require.False(t, filtered)
		out = append(out, v)
	}
	assert.Equal(t, []any{"a", "b", "c"}, out)
}

func TestAnyWriter_RejectsForeignItems(t *testing.T) {
	var got []int
	w := AnyWriter[int](port.ItemWriterFunc[int](func(_ context.Context, items []int) error {
		got = append(got, items...)
		return nil
	}))

	err := w.Write(context.Background(), []any{1, "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "position 1")
	assert.Empty(t, got)

	require.NoError(t, w.Write(context.Background(), []any{1, 2}))
	assert.Equal(t, []int{1, 2}, got)
}

func TestAnyReader_ForwardsStreamCalls(t *testing.T) {
	list := NewListItemReader([]string{"x", "y"})
	r := AnyReader[string](list)
	ec := model.NewExecutionContext()
	ec.Put(listReadCountKey, 1)

	require.NoError(t, r.(port.ItemStream).Open(context.Background(), ec))
	assert.Equal(t, []any{"y"}, readAll[any](t, r))
}

func TestFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, Fields([]string{"a", "b"}))
	assert.Equal(t, []string{"a"}, Fields("a"))
	assert.Equal(t, []string{"42"}, Fields(42))
}
