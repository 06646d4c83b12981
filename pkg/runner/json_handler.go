package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/sqlgraph/pkg/domain"
)

// JSONHandler speaks JSON lines: one event per output line, one review
// decision per input line.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder

	mu sync.Mutex
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: enc,
	}
}

// Output implements IOHandler.
func (h *JSONHandler) Output(ctx context.Context, e domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(e)
}

// Review implements IOHandler. The engine has already emitted the plan, so
// Review only reads the answer: a HumanFeedback object, a JSON string or a
// bare line parsed with ParseDecision.
func (h *JSONHandler) Review(ctx context.Context, req ReviewRequest) (domain.HumanFeedback, error) {
	text, err := h.Reader.ReadString('\n')
	text = strings.TrimSpace(text)
	if text == "" && err != nil {
		return domain.HumanFeedback{}, err
	}
	clean, serr := SanitizeInput(text)
	if serr != nil {
		return domain.HumanFeedback{}, serr
	}

	if strings.HasPrefix(clean, "{") {
		var fb domain.HumanFeedback
		if err := json.Unmarshal([]byte(clean), &fb); err != nil {
			return domain.HumanFeedback{}, fmt.Errorf("failed to decode review decision: %w", err)
		}
		fb.Text = strings.TrimSpace(fb.Text)
		return fb, nil
	}
	var s string
	if err := json.Unmarshal([]byte(clean), &s); err == nil {
		clean = s
	}
	return ParseDecision(clean), nil
}

// SystemOutput implements IOHandler.
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(map[string]string{"type": "system", "payload": msg})
}
