package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeneratorRetries(t *testing.T) {
	var waits []time.Duration
	originalWait := wait
	wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	defer func() { wait = originalWait }()

	internal := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	longQuota := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}

	tests := []struct {
		name       string
		responses  []fakeChatResponse
		maxRetries int
		output     string
		calls      int
		waits      int
	}{
		{
			name:       "server error then success",
			responses:  []fakeChatResponse{{err: internal}, {resp: textResponse("language:go cli")}},
			maxRetries: 2,
			output:     "language:go cli",
			calls:      2,
			waits:      1,
		},
		{
			name:       "retries exhausted",
			responses:  []fakeChatResponse{{err: internal}, {err: internal}},
			maxRetries: 2,
			calls:      2,
			waits:      1,
		},
		{
			name:       "long quota wait is not retried",
			responses:  []fakeChatResponse{{err: longQuota}},
			maxRetries: 3,
			calls:      1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			waits = nil
			chats := newFakeChatCreator()
			for _, r := range tt.responses {
				chats.enqueue(defaultModel, r.resp, r.err)
			}

			g := &Generator{chats: chats, model: defaultModel, maxRetries: tt.maxRetries, logger: zap.NewNop()}
			output, err := g.GenerateContent(context.Background(), "compose a query", "Skills: go")

			if tt.output == "" && err == nil {
				t.Fatalf("expected error, got output %q", output)
			}
			if tt.output != "" && (err != nil || output != tt.output) {
				t.Fatalf("expected %q, got %q (%v)", tt.output, output, err)
			}
			if len(chats.calls) != tt.calls || len(waits) != tt.waits {
				t.Fatalf("expected %d calls and %d waits, got %d and %d", tt.calls, tt.waits, len(chats.calls), len(waits))
			}

			for _, call := range chats.calls {
				if call.config.SystemInstruction == nil || call.config.SystemInstruction.Parts[0].Text != "compose a query" {
					t.Fatalf("unexpected system instruction: %+v", call.config.SystemInstruction)
				}
				if len(call.chat.messages) != 1 || call.chat.messages[0] != "Skills: go" {
					t.Fatalf("unexpected chat message: %+v", call.chat.messages)
				}
			}
		})
	}
}

func TestGeneratorStopsWaitingOnCancel(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue(defaultModel, nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := &Generator{chats: chats, model: defaultModel, maxRetries: 3, logger: zap.NewNop()}
	if _, err := g.GenerateContent(ctx, "", "msg"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorDoesNotRetryClientErrors(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-2.5-flash", nil, genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"})

	g := &Generator{
		chats:      chats,
		model:      "gemini-2.5-flash",
		maxRetries: 3,
		logger:     zap.NewNop(),
	}

	_, err := g.GenerateContent(context.Background(), "", "msg")
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		t.Fatalf("expected wrapped api error, got %v", err)
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
	if chats.calls[0].config.SystemInstruction != nil {
		t.Fatal("expected no system instruction for empty system prompt")
	}
}

func TestRetryDelayHonoursShortQuotaHint(t *testing.T) {
	delay, ok := retryDelay(genai.APIError{
		Code:    http.StatusTooManyRequests,
		Message: "Please retry in 2.5s.",
	}, 1)
	if !ok {
		t.Fatal("expected short quota delay to be retried")
	}
	if delay != 2500*time.Millisecond {
		t.Fatalf("unexpected delay %s", delay)
	}
}

func TestResponseTextRejectsEmptyCandidates(t *testing.T) {
	if _, err := responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "  "}}}}},
	}); err == nil {
		t.Fatal("expected error for blank response")
	}
	if _, err := responseText(nil); err == nil {
		t.Fatal("expected error for nil response")
	}
}
