package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/evalgate/evalgate/internal/domain/eval"
	"github.com/evalgate/evalgate/internal/registry"
)

func init() {
	registry.Sinks.MustRegister("console", func(config map[string]any) (eval.Sink, error) {
		return NewConsole(nil), nil
	})
	registry.Sinks.MustRegister("csv", fileSink(func(w io.Writer) eval.Sink { return NewCSV(w) }))
	registry.Sinks.MustRegister("json", fileSink(func(w io.Writer) eval.Sink { return NewJSON(w) }))
	registry.Sinks.MustRegister("junit", fileSink(func(w io.Writer) eval.Sink { return NewJUnit(w) }))
	registry.Sinks.MustRegister("html", fileSink(func(w io.Writer) eval.Sink { return NewHTML(w) }))
}

// fileSink builds a factory for sinks that write one output file, taking
// the destination from the "path" config key. The file is closed after the
// sink's final Flush.
func fileSink(build func(io.Writer) eval.Sink) registry.Factory[eval.Sink] {
	return func(config map[string]any) (eval.Sink, error) {
		path, _ := config["path"].(string)
		if path == "" {
			return nil, fmt.Errorf("sink config missing %q", "path")
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create output: %w", err)
		}
		return &closeOnFlush{Sink: build(f), closer: f}, nil
	}
}

// closeOnFlush closes the underlying file once the wrapped sink has
// flushed.
type closeOnFlush struct {
	eval.Sink
	closer io.Closer
}

func (s *closeOnFlush) Flush() error {
	flushErr := s.Sink.Flush()
	if err := s.closer.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("close output: %w", err)
	}
	return flushErr
}
