package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gpix/src/config"
	"gpix/src/region"
	"gpix/src/runtimeinit"
	"gpix/src/screenshot"
	"gpix/src/session"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type cliOptions struct {
	filePath   string
	crop       string
	jsonOutput bool
	verbose    bool
	apiKeyPath string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"gpix-cli"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gpix-cli",
		Short:         "Recognize a PNG of an equation as LaTeX",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVar(&opts.crop, "crop", "", "Region to recognize as x,y,w,h in image pixels")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, stdin io.Reader, stdout io.Writer) error {
	// Logging is configured before anything else can write to it.
	if opts.verbose {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rect, err := parseCrop(opts.crop)
	if err != nil {
		return err
	}

	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:   config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath},
		SkipClipboard: true,
	})
	if err != nil {
		return err
	}
	verbosef(opts, "Config loaded: Model=%s, key file %s", cfg.Model, cfg.APIKeyPath)

	data, err := readInput(opts.filePath, stdin)
	if err != nil {
		return err
	}
	verbosef(opts, "Read %d bytes", len(data))

	j := job{
		data:     data,
		source:   opts.filePath,
		crop:     rect,
		json:     opts.jsonOutput,
		deadline: time.Duration(cfg.APIDeadlineSec) * time.Second,
	}
	return j.run(ctx, nil, stdout)
}

func verbosef(opts cliOptions, format string, args ...any) {
	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "crop", "json", "verbose", "api-key-path"} {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}

	return normalized
}

// parseCrop reads "x,y,w,h". An empty string means the whole image.
func parseCrop(s string) (*region.Rect, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid --crop %q: want x,y,w,h", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid --crop %q: %w", s, err)
		}
		v[i] = n
	}
	return &region.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func readInput(filePath string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if filePath == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if err := validatePNG(data); err != nil {
		return nil, err
	}
	return data, nil
}

func validatePNG(data []byte) error {
	if len(data) == 0 {
		return errors.New("input file is empty")
	}
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return errors.New("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

// decodeFrame turns a PNG into a frame at scale 1, so the Region Extractor
// can crop it exactly as it crops a screen capture.
func decodeFrame(data []byte) (*screenshot.Frame, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &screenshot.Frame{
		Pixels:         rgba.Pix,
		PhysicalWidth:  b.Dx(),
		PhysicalHeight: b.Dy(),
		ScaleFactor:    1,
		LogicalWidth:   b.Dx(),
		LogicalHeight:  b.Dy(),
	}, nil
}

type job struct {
	data     []byte
	source   string
	crop     *region.Rect
	json     bool
	deadline time.Duration
}

// run crops, recognizes and prints. A nil recognize uses the Gemini client.
func (j job) run(ctx context.Context, recognize session.RecognizeFunc, w io.Writer) error {
	frame, err := decodeFrame(j.data)
	if err != nil {
		return err
	}
	rect := region.Rect{Width: frame.PhysicalWidth, Height: frame.PhysicalHeight}
	if j.crop != nil {
		rect = *j.crop
	}
	pix, err := region.Extract(frame, rect)
	if err != nil {
		return fmt.Errorf("crop %v: %w", rect, err)
	}

	var target session.ResultTarget = session.StdoutTarget{Writer: w}
	if j.json {
		target = discardTarget{}
	}
	res, err := session.Execute(ctx, session.Crop{Pixels: pix, Width: rect.Width, Height: rect.Height}, session.Options{
		Deadline:  j.deadline,
		Recognize: recognize,
		Target:    target,
	})
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}
	if j.json {
		return writeJSON(w, LatexResult{
			Latex:     res.Text,
			Source:    j.source,
			Region:    rect.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Duration:  res.Elapsed.Seconds(),
			CharCount: len(res.Text),
		})
	}
	return nil
}

type discardTarget struct{}

func (discardTarget) OnSuccess(string) error { return nil }
func (discardTarget) OnFailure(error) error  { return nil }

type LatexResult struct {
	Latex     string  `json:"latex"`
	Source    string  `json:"source"`
	Region    string  `json:"region"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func writeJSON(w io.Writer, result LatexResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
