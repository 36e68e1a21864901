package latex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/texform/internal/config"
)

const (
	sourceName = "document.tex"
	outputName = "document.pdf"
)

// ErrNoOutput means the toolchain exited cleanly but wrote no PDF.
var ErrNoOutput = errors.New("LaTeX compilation produced no PDF; ensure pdflatex or latexmk is installed")

// CompileError carries the toolchain log of a failed run.
type CompileError struct {
	Log string
	Err error
}

func (e *CompileError) Error() string { return "LaTeX compilation failed:\n" + e.Log }
func (e *CompileError) Unwrap() error { return e.Err }

// Runner executes name with args inside dir and returns its output streams.
type Runner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Compiler turns LaTeX source into PDF bytes.
type Compiler struct {
	UseLatexmk bool
	Timeout    time.Duration
	LookPath   func(file string) (string, error)
	Run        Runner
}

// NewCompiler builds a Compiler from latex_generator settings.
func NewCompiler(c config.LatexConfig) *Compiler {
	timeout := time.Duration(c.CompileTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Compiler{
		UseLatexmk: c.UseLatexmk,
		Timeout:    timeout,
		LookPath:   exec.LookPath,
		Run:        ExecRunner,
	}
}

// Compile writes source to a private scratch directory and runs latexmk once,
// or pdflatex twice when latexmk is disabled or missing. The directory is
// removed before returning.
func (c *Compiler) Compile(ctx context.Context, source string) ([]byte, error) {
	startTime := time.Now()

	dir, err := os.MkdirTemp("", "texform-latex-*")
	if err != nil {
		return nil, fmt.Errorf("create latex scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, sourceName), []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", sourceName, err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	name, args, passes := c.command()
	run := c.Run
	if run == nil {
		run = ExecRunner
	}

	log.Debug().Str("cmd", name+" "+strings.Join(args, " ")).Int("passes", passes).Msg("LaTeX command")

	for i := 0; i < passes; i++ {
		stdout, stderr, err := run(ctx, dir, name, args...)
		if err != nil {
			out := string(bytes.ToValidUTF8(stdout, []byte("�"))) + "\n" + string(bytes.ToValidUTF8(stderr, []byte("�")))
			log.Error().Err(err).Int("pass", i+1).Str("log", out).Msg("LaTeX compile error")
			return nil, &CompileError{Log: out, Err: err}
		}
	}

	pdf, err := os.ReadFile(filepath.Join(dir, outputName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoOutput
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", outputName, err)
	}

	log.Info().Str("engine", name).Int("bytes", len(pdf)).Dur("duration", time.Since(startTime)).Msg("compilation successful")
	return pdf, nil
}

func (c *Compiler) command() (string, []string, int) {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if c.UseLatexmk {
		if _, err := lookPath("latexmk"); err == nil {
			return "latexmk", []string{"-pdf", "-interaction=nonstopmode", "-halt-on-error", sourceName}, 1
		}
	}
	return "pdflatex", []string{"-interaction=nonstopmode", "-halt-on-error", sourceName}, 2
}
