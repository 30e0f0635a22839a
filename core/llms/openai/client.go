package openai

import (
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Client struct {
	client *goopenai.Client
	model  string
}

type ClientOption func(*goopenai.ClientConfig)

// WithBaseURL targets any OpenAI compatible endpoint.
func WithBaseURL(url string) ClientOption {
	return func(c *goopenai.ClientConfig) {
		c.BaseURL = url
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *goopenai.ClientConfig) {
		c.HTTPClient = client
	}
}

func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	config := goopenai.DefaultConfig(apiKey)
	config.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
			return operationName + " " + request.URL.Path
		}),
	)}
	for _, opt := range opts {
		opt(&config)
	}

	return &Client{client: goopenai.NewClientWithConfig(config), model: model}
}

func (c *Client) Model() string {
	return c.model
}
