package item

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"

	resource "github.com/tigerroll/chunkflow/pkg/batch/component/resource"
	port "github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	support "github.com/tigerroll/chunkflow/pkg/batch/core/config/support"
	configbinder "github.com/tigerroll/chunkflow/pkg/batch/support/util/configbinder"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

// Reference names of the built-in item components.
const (
	ListReaderRef           = "listReader"
	FlatFileReaderRef       = "flatFileReader"
	FlatFileWriterRef       = "flatFileWriter"
	LoggingWriterRef        = "loggingWriter"
	PassThroughProcessorRef = "passThroughProcessor"
)

type listReaderProperties struct {
	Items []string `yaml:"items"`
}

type flatFileProperties struct {
	Name        string   `yaml:"name"`
	Resource    string   `yaml:"resource"`
	Delimiter   string   `yaml:"delimiter"`
	LinesToSkip int      `yaml:"linesToSkip"`
	Header      []string `yaml:"header"`
}

func (p flatFileProperties) options() ([]FlatFileOption, error) {
	var opts []FlatFileOption
	if p.Delimiter != "" {
		runes := []rune(p.Delimiter)
		if p.Delimiter == `\t` {
			runes = []rune{'\t'}
		}
		if len(runes) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", p.Delimiter)
		}
		opts = append(opts, WithDelimiter(runes[0]))
	}
	if p.LinesToSkip > 0 {
		opts = append(opts, WithLinesToSkip(p.LinesToSkip))
	}
	if len(p.Header) > 0 {
		opts = append(opts, WithHeader(p.Header...))
	}
	return opts, nil
}

func bindFlatFile(ref string, properties map[string]string) (flatFileProperties, []FlatFileOption, error) {
	props := flatFileProperties{Name: ref}
	if err := configbinder.BindProperties(properties, &props); err != nil {
		return props, nil, err
	}
	if props.Resource == "" {
		return props, nil, fmt.Errorf("%s needs a 'resource' property", ref)
	}
	opts, err := props.options()
	return props, opts, err
}

// Fields renders an item as flat-file fields: a []string as is, a string as one field and
// anything else through fmt.
func Fields(item any) []string {
	switch v := item.(type) {
	case []string:
		return v
	case string:
		return []string{v}
	case fmt.Stringer:
		return []string{v.String()}
	}
	return []string{fmt.Sprint(item)}
}

// Register adds the built-in item components to registry.
func Register(registry *support.ComponentRegistry, resources *resource.Resources) {
	registry.RegisterReader(ListReaderRef, func(_ *config.Config, properties map[string]string) (port.ItemReader[any], error) {
		var props listReaderProperties
		if err := configbinder.BindProperties(properties, &props); err != nil {
			return nil, err
		}
		return AnyReader[string](NewListItemReader(props.Items)), nil
	})
	registry.RegisterReader(FlatFileReaderRef, func(_ *config.Config, properties map[string]string) (port.ItemReader[any], error) {
		props, opts, err := bindFlatFile(FlatFileReaderRef, properties)
		if err != nil {
			return nil, err
		}
		fields := func(_ int, f []string) ([]string, error) { return f, nil }
		return AnyReader[[]string](NewFlatFileItemReader(props.Name, resources, props.Resource, fields, opts...)), nil
	})
	registry.RegisterWriter(FlatFileWriterRef, func(_ *config.Config, properties map[string]string) (port.ItemWriter[any], error) {
		props, opts, err := bindFlatFile(FlatFileWriterRef, properties)
		if err != nil {
			return nil, err
		}
		return NewFlatFileItemWriter[any](props.Name, resources, props.Resource, Fields, opts...), nil
	})
	registry.RegisterWriter(LoggingWriterRef, func(*config.Config, map[string]string) (port.ItemWriter[any], error) {
		return port.ItemWriterFunc[any](func(ctx context.Context, items []any) error {
			for _, item := range items {
				logger.Infof("%s", strings.Join(Fields(item), ","))
			}
			return nil
		}), nil
	})
	registry.RegisterProcessor(PassThroughProcessorRef, func(*config.Config, map[string]string) (port.ItemProcessor[any, any], error) {
		return NewPassThroughItemProcessor[any](), nil
	})
}

// Module registers the built-in item components.
var Module = fx.Invoke(Register)
