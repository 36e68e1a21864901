package main

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"

    "github.com/local/texform/internal/filetype"
)

var (
    convertOut string
    convertPDF string
)

var convertCmd = &cobra.Command{
    Use:   "convert <file>",
    Short: "Convert a single PDF or image to LaTeX",
    Long: `Run the conversion pipeline on a local file without starting a server.

Examples:
  texform convert notes.pdf                 # writes notes.tex
  texform convert scan.jpg -o out.tex --pdf out.pdf`,
    Args: cobra.ExactArgs(1),
    RunE: func(cmd *cobra.Command, args []string) error {
        a, err := bootstrap(nil)
        if err != nil {
            return err
        }
        defer closeApp()

        src := args[0]
        content, err := os.ReadFile(src)
        if err != nil {
            return err
        }
        ext, err := a.validator().Validate(filepath.Base(src), content)
        if err != nil {
            return err
        }

        workDir, err := os.MkdirTemp("", "texform-*")
        if err != nil {
            return err
        }
        defer os.RemoveAll(workDir)

        upload := filepath.Join(workDir, filetype.SanitizeFilename(filepath.Base(src), ext))
        if err := os.WriteFile(upload, content, 0o644); err != nil {
            return err
        }

        res, err := a.pipeline.Run(cmd.Context(), upload, workDir)
        if err != nil {
            return err
        }

        out := convertOut
        if out == "" {
            out = strings.TrimSuffix(src, filepath.Ext(src)) + ".tex"
        }
        if err := os.WriteFile(out, []byte(res.Latex), 0o644); err != nil {
            return err
        }
        fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d pages)\n", out, res.Pages)

        if convertPDF != "" {
            if res.PDF == nil {
                log.Warn().Msg("PDF compilation failed; only the .tex file was written")
                return nil
            }
            if err := os.WriteFile(convertPDF, res.PDF, 0o644); err != nil {
                return err
            }
            fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", convertPDF)
        }
        return nil
    },
}

func init() {
    convertCmd.Flags().StringVarP(&convertOut, "out", "o", "", "output .tex path (default: input name with .tex)")
    convertCmd.Flags().StringVar(&convertPDF, "pdf", "", "also write the compiled PDF here")
}
