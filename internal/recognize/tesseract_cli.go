package recognize

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hyperjump/yomitori/internal/models"
)

// CLIEngine runs the tesseract binary with TSV output, which carries both the
// layout needed to rebuild text and per-word confidences.
type CLIEngine struct {
	bin      string
	language string
}

// NewCLIEngine creates an engine that invokes the tesseract binary at bin.
func NewCLIEngine(bin, language string) *CLIEngine {
	if bin == "" {
		bin = "tesseract"
	}
	return &CLIEngine{bin: bin, language: language}
}

func (e *CLIEngine) Name() string { return "tesseract-cli" }

// Recognize runs one tesseract invocation for req.Path.
func (e *CLIEngine) Recognize(ctx context.Context, req Request) (Output, error) {
	args := []string{req.Path, "stdout", "-l", e.language, "--psm", strconv.Itoa(req.PSM)}
	if req.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(req.DPI))
	}
	args = append(args, "tsv")

	cmd := exec.CommandContext(ctx, e.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Output{}, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Output{}, fmt.Errorf("tesseract: %w: %s", err, msg)
		}
		return Output{}, fmt.Errorf("tesseract: %w", err)
	}
	return ParseTSV(&stdout)
}

// Check verifies the binary runs and has data for the configured language.
func (e *CLIEngine) Check(ctx context.Context) error {
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrEngineUnavailable, e.bin, err)
	}
	out, err := exec.CommandContext(ctx, e.bin, "--list-langs").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s --list-langs: %v", ErrEngineUnavailable, e.bin, err)
	}
	return checkLanguages(e.language, ListedLanguages(string(out)))
}

// Version returns the first line of `tesseract --version`.
func (e *CLIEngine) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.bin, "--version").CombinedOutput()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// ListedLanguages parses `tesseract --list-langs` output.
func ListedLanguages(out string) []string {
	var langs []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}

// checkLanguages verifies every '+'-joined language in want is available.
func checkLanguages(want string, available []string) error {
	have := make(map[string]bool, len(available))
	for _, l := range available {
		have[l] = true
	}
	for _, l := range strings.Split(want, "+") {
		if l == "" {
			continue
		}
		if !have[l] {
			return fmt.Errorf("%w: language data %q not installed", ErrEngineUnavailable, l)
		}
	}
	return nil
}

const tsvWordLevel = 5

type lineKey struct {
	page, block, par, line int
}

// ParseTSV reads tesseract TSV output. Word rows become tokens; text is rebuilt
// with one line per OCR line and a blank line between paragraphs.
func ParseTSV(r io.Reader) (Output, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		out     Output
		text    strings.Builder
		prev    lineKey
		lineHas bool
		started bool
	)
	header := true
	for sc.Scan() {
		row := sc.Text()
		if header {
			header = false
			if strings.HasPrefix(row, "level") {
				continue
			}
		}
		cols := strings.Split(row, "\t")
		if len(cols) < 11 {
			continue
		}
		level, err := strconv.Atoi(cols[0])
		if err != nil || level != tsvWordLevel {
			continue
		}
		word := ""
		if len(cols) >= 12 {
			word = strings.TrimSpace(cols[11])
		}
		if word == "" {
			continue
		}
		// A non-numeric confidence keeps the word but marks the token invalid.
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
		if err != nil {
			conf = -1
		}

		key := lineKey{atoi(cols[1]), atoi(cols[2]), atoi(cols[3]), atoi(cols[4])}
		switch {
		case !started:
			started = true
		case key.page != prev.page || key.block != prev.block || key.par != prev.par:
			text.WriteString("\n\n")
			lineHas = false
		case key.line != prev.line:
			text.WriteString("\n")
			lineHas = false
		}
		if lineHas {
			text.WriteByte(' ')
		}
		text.WriteString(word)
		lineHas = true
		prev = key

		out.Tokens = append(out.Tokens, models.Token{Text: word, Confidence: truncConfidence(conf)})
	}
	if err := sc.Err(); err != nil {
		return Output{}, fmt.Errorf("read tsv: %w", err)
	}
	out.Text = text.String()
	return out, nil
}

// truncConfidence truncates toward zero; negative values mark invalid tokens.
func truncConfidence(c float64) int {
	if c < 0 {
		return -1
	}
	return int(c)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
