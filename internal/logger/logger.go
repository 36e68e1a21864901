package logger

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"

    "github.com/local/texform/internal/config"
)

const serviceName = "texform"

// Options defines logger initialization parameters.
type Options struct {
    Level  string
    Pretty bool

    // File enables a rotated JSON log next to the console output.
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool

    // Axiom forwarding is active only when Send is set and APIKey is non-empty.
    Axiom config.AxiomConfig

    // Out replaces stdout; used by tests.
    Out io.Writer
}

// FromConfig maps the logging section of the settings onto Options.
func FromConfig(c config.LoggingConfig) Options {
    return Options{
        Level:      c.Level,
        Pretty:     c.Pretty,
        File:       c.File,
        MaxSizeMB:  c.MaxSizeMB,
        MaxBackups: c.MaxBackups,
        MaxAgeDays: c.MaxAgeDays,
        Compress:   c.Compress,
        Axiom:      c.Axiom,
    }
}

var shipper *axiomShipper

// Init installs the global zerolog logger. It always installs one: when the
// log file or Axiom sink cannot be set up, that sink is skipped and the
// returned error says why.
func Init(opts Options) error {
    var sinkErrs []error

    out := opts.Out
    if out == nil {
        out = os.Stdout
    }
    var console io.Writer = out
    if opts.Pretty {
        console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
    }
    writers := []io.Writer{console}

    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            sinkErrs = append(sinkErrs, fmt.Errorf("log file disabled: %w", err))
        } else {
            writers = append(writers, &lumberjack.Logger{
                Filename:   opts.File,
                MaxSize:    opts.MaxSizeMB,
                MaxBackups: opts.MaxBackups,
                MaxAge:     opts.MaxAgeDays,
                Compress:   opts.Compress,
            })
        }
    }

    Close()
    if opts.Axiom.Send && opts.Axiom.APIKey != "" {
        s, err := newAxiomShipper(opts.Axiom)
        if err != nil {
            sinkErrs = append(sinkErrs, fmt.Errorf("axiom disabled: %w", err))
        } else {
            shipper = s
            writers = append(writers, s)
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil || opts.Level == "" {
        lvl = zerolog.InfoLevel
    }
    log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
        Level(lvl).With().Timestamp().Str("service", serviceName).Logger()

    return errors.Join(sinkErrs...)
}

// Close flushes and stops Axiom forwarding, if any.
func Close() {
    if shipper != nil {
        shipper.close()
        shipper = nil
    }
}

// axiomShipper batches log events and ingests them into an Axiom dataset.
// Debug events are not shipped.
type axiomShipper struct {
    client  *axiom.Client
    dataset string
    events  chan axiom.Event
    done    chan struct{}
    wg      sync.WaitGroup
}

const axiomBatch = 200

func newAxiomShipper(c config.AxiomConfig) (*axiomShipper, error) {
    opts := []axiom.Option{axiom.SetToken(c.APIKey)}
    if c.OrgID != "" {
        opts = append(opts, axiom.SetOrganizationID(c.OrgID))
    }
    client, err := axiom.NewClient(opts...)
    if err != nil {
        return nil, err
    }
    dataset := c.Dataset
    if dataset == "" {
        dataset = "dev_" + serviceName
    }
    every := c.FlushInterval
    if every <= 0 {
        every = 10 * time.Second
    }
    s := &axiomShipper{
        client:  client,
        dataset: dataset,
        events:  make(chan axiom.Event, 1000),
        done:    make(chan struct{}),
    }
    s.wg.Add(1)
    go s.run(every)
    return s, nil
}

func (s *axiomShipper) Write(p []byte) (int, error) {
    return s.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (s *axiomShipper) WriteLevel(level zerolog.Level, p []byte) (int, error) {
    if level == zerolog.DebugLevel || level == zerolog.TraceLevel {
        return len(p), nil
    }
    ev := axiom.Event{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = axiom.Event{"message": string(p)}
    }
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    select {
    case s.events <- ev:
    default: // buffer full, drop
    }
    return len(p), nil
}

func (s *axiomShipper) run(every time.Duration) {
    defer s.wg.Done()
    ticker := time.NewTicker(every)
    defer ticker.Stop()

    batch := make([]axiom.Event, 0, axiomBatch)
    flush := func() {
        if len(batch) == 0 {
            return
        }
        ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        if _, err := s.client.IngestEvents(ctx, s.dataset, batch); err != nil {
            fmt.Fprintf(os.Stderr, "axiom ingest failed: %v\n", err)
        }
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case ev := <-s.events:
            batch = append(batch, ev)
            if len(batch) >= axiomBatch {
                flush()
            }
        case <-ticker.C:
            flush()
        case <-s.done:
            for {
                select {
                case ev := <-s.events:
                    batch = append(batch, ev)
                default:
                    flush()
                    return
                }
            }
        }
    }
}

func (s *axiomShipper) close() {
    close(s.done)
    s.wg.Wait()
}
