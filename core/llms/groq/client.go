// Package groq talks to the Groq chat completions API. A Client keeps a
// short rolling conversation so follow-up prompts have context.
package groq

import (
	"errors"
	"net/http"
	"slices"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultURL          = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel        = "llama-3.1-8b-instant"
	DefaultSystemPrompt = "You are the MASTER SYSTEM, a highly advanced, holographic AI assistant. " +
		"You are efficient, professional, and slightly futuristic. " +
		"You are NOT a chatbot; you are a command center. " +
		"Keep responses concise and direct. Address the user as 'Sir'."

	defaultHistoryLimit = 10
)

var ErrMissingAPIKey = errors.New("groq api key is not set")

type Client struct {
	apiKey       string
	model        string
	url          string
	systemPrompt string
	historyLimit int
	httpClient   *http.Client

	mu      sync.Mutex
	history []Exchange

	prompts metric.Int64Counter
}

type ClientOption func(*Client)

// WithSystemPrompt replaces the persona sent ahead of every prompt. An empty
// prompt keeps DefaultSystemPrompt.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) {
		if prompt != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithHistoryLimit caps how many past exchanges are sent along with each
// prompt. Zero disables history.
func WithHistoryLimit(limit int) ClientOption {
	return func(c *Client) {
		if limit >= 0 {
			c.historyLimit = limit
		}
	}
}

func WithURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(apiKey, model string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	c := &Client{
		apiKey:       apiKey,
		model:        model,
		url:          defaultURL,
		systemPrompt: DefaultSystemPrompt,
		historyLimit: defaultHistoryLimit,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}

	prompts, err := meter.Int64Counter("groq.prompts",
		metric.WithDescription("Number of prompts sent to the model"))
	if err != nil {
		logger.Warn("failed to create prompt counter", "error", err)
	}
	c.prompts = prompts

	return c, nil
}

func (c *Client) Model() string {
	return c.model
}

// History returns a copy of the exchanges that will accompany the next
// prompt, oldest first.
func (c *Client) History() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.history)
}

func (c *Client) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

func (c *Client) remember(exchange Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.historyLimit == 0 {
		return
	}
	c.history = append(c.history, exchange)
	if overflow := len(c.history) - c.historyLimit; overflow > 0 {
		c.history = append([]Exchange(nil), c.history[overflow:]...)
	}
}

func (c *Client) messagesFor(prompt string) []message {
	c.mu.Lock()
	history := c.history
	c.mu.Unlock()

	messages := toMessages(c.systemPrompt, history)
	return append(messages, message{Role: messageRoleUser, Content: prompt})
}
