package recognize

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineImage() image.Image { return image.NewGray(image.Rect(0, 0, 40, 20)) }

func TestNewGenParams(t *testing.T) {
	assert.Equal(t, GenParams{MaxLength: 512, NumBeams: 4}, NewGenParams(0, 0))
	assert.Equal(t, GenParams{MaxLength: 1024, NumBeams: 16}, NewGenParams(5000, 99))
	assert.Equal(t, GenParams{MaxLength: 1, NumBeams: 1}, NewGenParams(-3, -1))
	assert.Equal(t, GenParams{MaxLength: 64, NumBeams: 2}, NewGenParams(64, 2))
}

func TestTrOCRClient_RecognizeLine(t *testing.T) {
	var got trocrReq
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/microsoft/trocr-base-handwritten", r.URL.Path)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`[{"generated_text": "  the integral of x  "}]`))
	}))
	defer server.Close()

	c, err := NewTrOCRClient(TrOCRConfig{Endpoint: server.URL + "/", APIKey: "hf-token"})
	require.NoError(t, err)

	text, err := c.RecognizeLine(context.Background(), lineImage(), GenParams{MaxLength: 128, NumBeams: 3})
	require.NoError(t, err)
	assert.Equal(t, "the integral of x", text)
	assert.Equal(t, 128, got.Parameters.MaxLength)
	assert.Equal(t, 3, got.Parameters.NumBeams)
	assert.True(t, got.Parameters.EarlyStopping)
	assert.NotEmpty(t, got.Inputs)
}

func TestTrOCRClient_ObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"generated_text": "hello"}`))
	}))
	defer server.Close()

	c, err := NewTrOCRClient(TrOCRConfig{Endpoint: server.URL, Model: "m"})
	require.NoError(t, err)
	text, err := c.RecognizeLine(context.Background(), lineImage(), NewGenParams(0, 0))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestTrOCRClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"loading"}`))
	}))
	defer server.Close()

	c, err := NewTrOCRClient(TrOCRConfig{Endpoint: server.URL})
	require.NoError(t, err)
	_, err = c.RecognizeLine(context.Background(), lineImage(), NewGenParams(0, 0))

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusServiceUnavailable, he.StatusCode)
	assert.Equal(t, TrOCRName, he.Provider)
}

func TestNewTrOCRClient_RequiresEndpoint(t *testing.T) {
	_, err := NewTrOCRClient(TrOCRConfig{})
	assert.Error(t, err)
}

func TestOpenAIClient_RecognizeLine(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &payload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": " a^2 + b^2 = c^2 "}}]
		}`))
	}))
	defer server.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := c.RecognizeLine(context.Background(), lineImage(), GenParams{MaxLength: 256, NumBeams: 1})
	require.NoError(t, err)
	assert.Equal(t, "a^2 + b^2 = c^2", text)
	assert.Equal(t, "gpt-4o-mini", payload["model"])
	assert.EqualValues(t, 256, payload["max_tokens"])
}

func TestOpenAIClient_ErrorMapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	c, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)
	_, err = c.RecognizeLine(context.Background(), lineImage(), NewGenParams(0, 0))

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	assert.Equal(t, OpenAIName, he.Provider)
}

func TestNewOpenAIClient_NoKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestModelHandle_InitOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	h := NewModelHandle(func(ctx context.Context) (LineRecognizer, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &fakeRecognizer{}, nil
	})

	var wg sync.WaitGroup
	recs := make([]LineRecognizer, 8)
	for i := range recs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := h.Get(context.Background())
			assert.NoError(t, err)
			recs[i] = rec
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range recs {
		assert.Same(t, recs[0], r)
	}
}

func TestModelHandle_FailedInitRetried(t *testing.T) {
	var calls atomic.Int32
	h := NewModelHandle(func(ctx context.Context) (LineRecognizer, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("weights unavailable")
		}
		return &fakeRecognizer{}, nil
	})

	_, err := h.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights unavailable")

	rec, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rec)
	assert.EqualValues(t, 2, calls.Load())
}

func TestMathpixClient_Recognize(t *testing.T) {
	var payload mathpixReq
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "id-1", r.Header.Get("app_id"))
		assert.Equal(t, "key-1", r.Header.Get("app_key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &payload))
		_, _ = w.Write([]byte(`{"latex_normal": " \\int_0^1 x\\,dx "}`))
	}))
	defer server.Close()

	c := NewMathpixClient(MathpixConfig{APIURL: server.URL, AppID: "id-1", AppKey: "key-1", IncludeLatex: true})
	latex, err := c.Recognize(context.Background(), "QUJD")
	require.NoError(t, err)
	assert.Equal(t, `\int_0^1 x\,dx`, latex)
	assert.Equal(t, "data:image/png;base64,QUJD", payload.Src)
	assert.Equal(t, []string{"latex_normal"}, payload.Formats)
	assert.True(t, payload.DataOptions.IncludeLatex)
	assert.False(t, payload.DataOptions.IncludeMathML)
}

func TestMathpixClient_NotConfigured(t *testing.T) {
	c := NewMathpixClient(MathpixConfig{AppID: "only-id"})
	assert.False(t, c.Configured())
	_, err := c.Recognize(context.Background(), "QUJD")
	assert.ErrorIs(t, err, ErrNoCredentials)

	var nilClient *MathpixClient
	assert.False(t, nilClient.Configured())
}

func TestMathpixClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewMathpixClient(MathpixConfig{APIURL: server.URL, AppID: "a", AppKey: "b"})
	_, err := c.Recognize(context.Background(), "QUJD")
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusForbidden, he.StatusCode)
}

func TestMathTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, MathTimeout(0))
	assert.Equal(t, 5*time.Second, MathTimeout(2))
	assert.Equal(t, 30*time.Second, MathTimeout(30))
	assert.Equal(t, 120*time.Second, MathTimeout(500))
}

func TestJoinFragments(t *testing.T) {
	assert.Equal(t, "", JoinFragments(nil))
	assert.Equal(t, "x = 1", JoinFragments("  x = 1 \n"))
	assert.Equal(t, "a\n\nb", JoinFragments([]string{"a", "", "b"}))
	assert.Equal(t, "t\n\nl\n\nc", JoinFragments([]Fragment{{Text: "t"}, {Latex: "l"}, {Content: "c"}, {}}))
	assert.Equal(t, "first\n\n\\frac{1}{2}", JoinFragments([]map[string]any{
		{"text": "first", "latex": "ignored"},
		{"latex": `\frac{1}{2}`},
		{"score": 0.3},
	}))
	assert.Equal(t, "s\n\nm", JoinFragments([]any{"s", map[string]any{"content": "m"}, 42}))
	assert.Equal(t, "42", JoinFragments(42))
}

func TestOfflineStubOrReal(t *testing.T) {
	if OfflineAvailable() {
		t.Skip("built with -tags ocr")
	}
	tm, err := NewTesseractMath("eng")
	assert.Nil(t, tm)
	assert.True(t, errors.Is(err, ErrOfflineDisabled))
	assert.True(t, strings.Contains(err.Error(), "-tags ocr"))
}
