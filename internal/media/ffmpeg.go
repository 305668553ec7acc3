package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"vidpipe/internal/storage"
	"vidpipe/internal/utils"
)

// Filter is a video filter descriptor: DrawText or OverlayImage.
type Filter interface {
	filter()
}

// DrawText burns text into every frame. X and Y are ffmpeg expressions.
type DrawText struct {
	Text      string
	FontFile  string
	FontSize  int
	FontColor string
	BoxColor  string
	BoxBorder int
	X, Y      string
}

// OverlayImage composites an image stored under BlobKey. X and Y are ffmpeg
// overlay expressions.
type OverlayImage struct {
	BlobKey string
	X, Y    string
}

func (DrawText) filter()     {}
func (OverlayImage) filter() {}

// Target describes the output encoding
type Target struct {
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
	Format     string
}

// H264MP4 is the web-playable export every processed video uses.
var H264MP4 = Target{
	VideoCodec: "libx264",
	AudioCodec: "aac",
	CRF:        23,
	Preset:     "medium",
	Format:     "mp4",
}

type TranscodeRequest struct {
	InputPath  string
	OutputPath string
	Filters    []Filter
	Target     Target
	Log        io.Writer // optional, receives encoder diagnostics
}

// ffmpeg unescapes a filter twice: the filtergraph parser splits filters,
// then the filter splits its key=value options. Values are escaped for the
// option level first and the result again for the graph level.
var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// EscapeText escapes an option value, such as drawtext's text, for use inside
// a -filter_complex graph.
func EscapeText(s string) string {
	return graphEscaper.Replace(escapeOptionValue(s))
}

// escapeOptionValue also protects leading and trailing blanks, which the
// option parser would otherwise trim.
func escapeOptionValue(s string) string {
	body := strings.TrimLeft(s, " \t")
	lead := s[:len(s)-len(body)]
	body = strings.TrimRight(body, " \t")
	trail := s[len(lead)+len(body):]
	return escapeBlanks(lead) + optionEscaper.Replace(body) + escapeBlanks(trail)
}

func escapeBlanks(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	return b.String()
}

// BuildArgs returns the ffmpeg argument list for req. overlayFiles holds the
// local path of each OverlayImage in req.Filters, in order.
func BuildArgs(req TranscodeRequest, overlayFiles []string) ([]string, error) {
	// warnings and errors only; progress lines would flood the processing log
	args := []string{"-hide_banner", "-nostats", "-loglevel", "warning", "-i", req.InputPath}
	for _, f := range overlayFiles {
		args = append(args, "-i", f)
	}

	videoMap := "0:v:0"
	if len(req.Filters) > 0 {
		var chain []string
		current := "[0:v]"
		overlayIdx := 0
		for i, f := range req.Filters {
			out := fmt.Sprintf("[v%d]", i)
			switch f := f.(type) {
			case DrawText:
				chain = append(chain, current+drawTextFilter(f)+out)
			case OverlayImage:
				if overlayIdx >= len(overlayFiles) {
					return nil, fmt.Errorf("no input file for overlay %s", f.BlobKey)
				}
				overlayIdx++
				chain = append(chain, fmt.Sprintf("%s[%d:v]overlay=x=%s:y=%s%s", current, overlayIdx, f.X, f.Y, out))
			default:
				return nil, fmt.Errorf("unsupported filter %T", f)
			}
			current = out
		}
		if overlayIdx != len(overlayFiles) {
			return nil, fmt.Errorf("got %d overlay files for %d overlays", len(overlayFiles), overlayIdx)
		}
		args = append(args, "-filter_complex", strings.Join(chain, ";"))
		videoMap = current
	}

	t := req.Target
	args = append(args,
		"-map", videoMap,
		"-map", "0:a?",
		"-c:v", t.VideoCodec,
		"-preset", t.Preset,
		"-crf", strconv.Itoa(t.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", t.AudioCodec,
		"-movflags", "+faststart",
		"-f", t.Format,
		"-y",
		req.OutputPath,
	)
	return args, nil
}

func drawTextFilter(d DrawText) string {
	opts := []string{
		"text=" + EscapeText(d.Text),
		"expansion=none",
	}
	if d.FontFile != "" {
		opts = append(opts, "fontfile="+EscapeText(d.FontFile))
	}
	opts = append(opts,
		"fontsize="+strconv.Itoa(d.FontSize),
		"fontcolor="+d.FontColor,
	)
	if d.BoxColor != "" {
		opts = append(opts,
			"box=1",
			"boxcolor="+d.BoxColor,
			"boxborderw="+strconv.Itoa(d.BoxBorder),
		)
	}
	opts = append(opts, "line_spacing=5", "x="+d.X, "y="+d.Y)
	return "drawtext=" + strings.Join(opts, ":")
}

// FFmpeg runs the ffmpeg binary. Overlay images are fetched from Storage into
// TempDir before the run.
type FFmpeg struct {
	Path    string
	Storage storage.Storage
	TempDir string
}

func NewFFmpeg(path string, store storage.Storage, tempDir string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Storage: store, TempDir: tempDir}
}

const outputTailBytes = 4096

// Transcode runs the export described by req. Encoder failures come back as
// *utils.TranscodeError carrying the tail of ffmpeg's output.
func (f *FFmpeg) Transcode(ctx context.Context, req TranscodeRequest) error {
	workDir, err := os.MkdirTemp(f.TempDir, "vidpipe-overlay-*")
	if err != nil {
		return fmt.Errorf("create overlay dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	var overlayFiles []string
	for i, filter := range req.Filters {
		o, ok := filter.(OverlayImage)
		if !ok {
			continue
		}
		path := filepath.Join(workDir, fmt.Sprintf("overlay_%d%s", i, filepath.Ext(o.BlobKey)))
		if err := f.fetch(o.BlobKey, path); err != nil {
			return err
		}
		overlayFiles = append(overlayFiles, path)
	}

	args, err := BuildArgs(req, overlayFiles)
	if err != nil {
		return &utils.TranscodeError{Err: err}
	}

	var out bytes.Buffer
	var sink io.Writer = &out
	if req.Log != nil {
		sink = io.MultiWriter(&out, req.Log)
	}

	cmd := exec.CommandContext(ctx, f.Path, args...)
	cmd.Stdout = sink
	cmd.Stderr = sink
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return &utils.TranscodeError{Err: err, Output: tail(out.String(), outputTailBytes)}
	}
	return nil
}

func (f *FFmpeg) fetch(key, path string) error {
	r, err := storage.Get(f.Storage, key)
	if err != nil {
		return err
	}
	defer r.Close()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return &utils.StorageError{Op: "get", Key: key, Err: err}
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
