package runner

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// TextHandler writes events for a human and prompts for review decisions.
// Markdown fragments are buffered and rendered as one document once the
// stream moves on.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	// ImageDir receives chart artifacts. Images are only summarized when empty.
	ImageDir string

	mu       sync.Mutex
	markdown strings.Builder
	images   int

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithImageDir saves image events under dir.
func WithImageDir(dir string) TextHandlerOption {
	return func(h *TextHandler) {
		h.ImageDir = dir
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{Reader: bufio.NewReader(r), Writer: w}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Output implements IOHandler.
func (h *TextHandler) Output(ctx context.Context, e domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Type == domain.EventMarkdown {
		h.markdown.WriteString(e.Payload)
		return nil
	}
	h.flush()

	switch e.Type {
	case domain.EventStatus:
		fmt.Fprintf(h.Writer, "· %s\n", e.Payload)
	case domain.EventJSON:
		h.writeJSON(e.Payload)
	case domain.EventImage:
		h.writeImage(e.Payload)
	case domain.EventError:
		fmt.Fprintf(h.Writer, "Error: %s\n", e.Payload)
	}
	return nil
}

// flush renders buffered markdown. Callers hold mu.
func (h *TextHandler) flush() {
	if h.markdown.Len() == 0 {
		return
	}
	out := h.markdown.String()
	h.markdown.Reset()
	if h.Renderer != nil {
		if rendered, err := h.Renderer(out); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(h.Writer, strings.TrimSpace(out))
}

func (h *TextHandler) writeJSON(payload string) {
	var v map[string]any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		fmt.Fprintln(h.Writer, payload)
		return
	}
	// Review requests are presented by Review.
	if v["type"] == "human_review" {
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(h.Writer, string(pretty))
}

func (h *TextHandler) writeImage(payload string) {
	mimeType, data, err := decodeDataURL(payload)
	if err != nil {
		fmt.Fprintf(h.Writer, "[image: %v]\n", err)
		return
	}
	if h.ImageDir == "" {
		fmt.Fprintf(h.Writer, "[image %s, %d bytes]\n", mimeType, len(data))
		return
	}
	h.images++
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = exts[0]
	}
	path := filepath.Join(h.ImageDir, fmt.Sprintf("chart-%d%s", h.images, ext))
	if err := os.MkdirAll(h.ImageDir, 0o755); err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		fmt.Fprintf(h.Writer, "[image not saved: %v]\n", err)
		return
	}
	fmt.Fprintf(h.Writer, "[image saved to %s]\n", path)
}

// decodeDataURL splits "data:<mime>;base64,<data>".
func decodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, enc, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	mimeType, _, _ := strings.Cut(meta, ";")
	data, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, err
	}
	return mimeType, data, nil
}

// Review implements IOHandler. It prints the plan and reads one answer.
func (h *TextHandler) Review(ctx context.Context, req ReviewRequest) (domain.HumanFeedback, error) {
	h.mu.Lock()
	h.flush()
	plan := req.Plan.Markdown()
	if h.Renderer != nil {
		if rendered, err := h.Renderer(plan); err == nil {
			plan = rendered
		}
	}
	fmt.Fprintf(h.Writer, "\nPlan for review:\n%s\n", strings.TrimRight(plan, "\n"))
	h.mu.Unlock()

	for {
		answer, err := h.readLine(ctx, "Approve? [Y/n or type feedback] ")
		if err != nil {
			return domain.HumanFeedback{}, err
		}
		clean, err := SanitizeInput(answer)
		if err != nil {
			fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
			continue
		}
		return ParseDecision(clean), nil
	}
}

// SystemOutput implements IOHandler.
func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flush()
	fmt.Fprintf(h.Writer, "\n[System] %s\n", msg)
	return nil
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines on its own goroutine so a pending read never blocks
// cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')
		if text != "" {
			h.inputChan <- inputResult{text: text}
		}
		if err != nil {
			if err != io.EOF {
				h.inputChan <- inputResult{err: err}
			}
			close(h.inputChan)
			return
		}
	}
}

func (h *TextHandler) readLine(ctx context.Context, prompt string) (string, error) {
	h.initPump()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
		fmt.Fprint(h.Writer, prompt)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-h.inputChan:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.text), nil
	}
}
