package recognize

import (
    "context"
    "encoding/base64"
    "errors"
    "fmt"
    "image"
    "net/http"
    "strings"
    "time"

    openai "github.com/openai/openai-go/v3"
    "github.com/openai/openai-go/v3/option"
)

const OpenAIName = "openai"

const lineSystemPrompt = "You transcribe a single line of handwritten notes. " +
    "Return only the text on the line, with no commentary. " +
    "Write mathematical notation in LaTeX without surrounding delimiters."

// OpenAIConfig holds configuration for the OpenAI vision line recognizer.
type OpenAIConfig struct {
    APIKey     string
    Model      string
    Timeout    time.Duration
    BaseURL    string       // optional (tests)
    HTTPClient *http.Client // optional (tests)
}

// OpenAIClient transcribes line crops with a vision-capable chat model.
type OpenAIClient struct {
    client openai.Client
    model  string
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
    if cfg.APIKey == "" {
        return nil, fmt.Errorf("openai: %w", ErrNoCredentials)
    }
    if cfg.Model == "" {
        cfg.Model = string(openai.ChatModelGPT4oMini)
    }
    if cfg.Timeout <= 0 {
        cfg.Timeout = 60 * time.Second
    }
    hc := cfg.HTTPClient
    if hc == nil {
        hc = &http.Client{Timeout: cfg.Timeout}
    }
    opts := []option.RequestOption{
        option.WithAPIKey(cfg.APIKey),
        option.WithHTTPClient(hc),
        // one attempt per line
        option.WithMaxRetries(0),
    }
    if cfg.BaseURL != "" {
        opts = append(opts, option.WithBaseURL(cfg.BaseURL))
    }
    return &OpenAIClient{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

func (c *OpenAIClient) Name() string { return OpenAIName }

func (c *OpenAIClient) RecognizeLine(ctx context.Context, img image.Image, p GenParams) (string, error) {
    data, err := encodePNG(img)
    if err != nil {
        return "", err
    }
    imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

    params := openai.ChatCompletionNewParams{
        Model: openai.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage(lineSystemPrompt),
            openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
                openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
            }),
        },
        MaxTokens:   openai.Int(int64(p.MaxLength)),
        Temperature: openai.Float(0),
    }

    resp, err := c.client.Chat.Completions.New(ctx, params)
    if err != nil {
        return "", mapOpenAIError(err)
    }
    if len(resp.Choices) == 0 {
        return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
    }
    return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func mapOpenAIError(err error) error {
    var apiErr *openai.Error
    if errors.As(err, &apiErr) {
        return &HTTPError{StatusCode: apiErr.StatusCode, Body: apiErr.Message, Provider: OpenAIName}
    }
    return err
}
