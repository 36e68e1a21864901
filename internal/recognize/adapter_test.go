package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/texform/internal/segment"
)

// fakeRecognizer returns queued answers in call order.
type fakeRecognizer struct {
	mu      sync.Mutex
	answers []string
	failAt  int // 1-based call that fails; 0 never
	calls   int
	params  []GenParams
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) RecognizeLine(_ context.Context, _ image.Image, p GenParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = append(f.params, p)
	if f.failAt == f.calls {
		return "", errors.New("model exploded")
	}
	if f.calls <= len(f.answers) {
		return f.answers[f.calls-1], nil
	}
	return fmt.Sprintf("line %d", f.calls), nil
}

type fakeOffline struct {
	out string
	err error
}

func (f fakeOffline) Recognize(context.Context, string) (string, error) { return f.out, f.err }

// writePage writes a white PNG with full-width black bands.
func writePage(t *testing.T, spans ...[2]int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 120, 100))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, s := range spans {
		for y := s[0]; y < s[1]; y++ {
			for x := 0; x < 120; x++ {
				img.SetGray(x, y, color.Gray{})
			}
		}
	}
	p := filepath.Join(t.TempDir(), "page_001.png")
	f, err := os.Create(p)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return p
}

func adapterWith(rec LineRecognizer) *Adapter {
	return &Adapter{
		Model: NewModelHandle(func(context.Context) (LineRecognizer, error) {
			return rec, nil
		}),
		Segment: segment.DefaultOptions(),
		Params:  NewGenParams(0, 0),
	}
}

func TestRecognizePage_JoinsLinesAndDropsEmpty(t *testing.T) {
	page := writePage(t, [2]int{10, 30}, [2]int{40, 60}, [2]int{70, 90})
	rec := &fakeRecognizer{answers: []string{" first ", "   ", "third"}}

	text, err := adapterWith(rec).RecognizePage(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "first\nthird", text)
	assert.Equal(t, 3, rec.calls)
	assert.Equal(t, GenParams{MaxLength: 512, NumBeams: 4}, rec.params[0])
}

func TestRecognizePage_BlankPageIsOneLine(t *testing.T) {
	rec := &fakeRecognizer{answers: []string{""}}
	text, err := adapterWith(rec).RecognizePage(context.Background(), writePage(t))
	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.Equal(t, 1, rec.calls)
}

func TestRecognizePage_LineErrorFailsPage(t *testing.T) {
	page := writePage(t, [2]int{10, 30}, [2]int{40, 60})
	rec := &fakeRecognizer{failAt: 2}

	_, err := adapterWith(rec).RecognizePage(context.Background(), page)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recognize line 2/2")
}

func TestRecognizePage_ModelInitFailure(t *testing.T) {
	a := adapterWith(nil)
	a.Model = NewModelHandle(func(context.Context) (LineRecognizer, error) {
		return nil, errors.New("no weights")
	})
	_, err := a.RecognizePage(context.Background(), writePage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize handwriting model")
}

func mathpixServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func TestEnrich(t *testing.T) {
	page := writePage(t, [2]int{10, 30})

	t.Run("no image returns trimmed raw", func(t *testing.T) {
		a := &Adapter{}
		assert.Equal(t, "hello", a.Enrich(context.Background(), "  hello \n", ""))
	})

	t.Run("unreadable image returns raw", func(t *testing.T) {
		a := &Adapter{}
		assert.Equal(t, "hello", a.Enrich(context.Background(), "hello", filepath.Join(t.TempDir(), "gone.png")))
	})

	t.Run("mathpix result appended as display math", func(t *testing.T) {
		s := mathpixServer(t, http.StatusOK, `{"latex_normal": "x^2"}`)
		a := &Adapter{Mathpix: NewMathpixClient(MathpixConfig{APIURL: s.URL, AppID: "a", AppKey: "b"})}
		assert.Equal(t, "raw\n\n\\[\nx^2\n\\]", a.Enrich(context.Background(), "raw", page))
	})

	t.Run("mathpix failure falls back to offline", func(t *testing.T) {
		s := mathpixServer(t, http.StatusInternalServerError, `boom`)
		a := &Adapter{
			Mathpix:        NewMathpixClient(MathpixConfig{APIURL: s.URL, AppID: "a", AppKey: "b"}),
			Offline:        fakeOffline{out: " y = 2 "},
			UseFreeBackend: true,
		}
		assert.Equal(t, "raw\n\ny = 2", a.Enrich(context.Background(), "raw", page))
	})

	t.Run("offline ignored when free backend disabled", func(t *testing.T) {
		a := &Adapter{Offline: fakeOffline{out: "y"}, UseFreeBackend: false}
		assert.Equal(t, "raw", a.Enrich(context.Background(), "raw", page))
	})

	t.Run("no credentials and offline unavailable returns raw", func(t *testing.T) {
		a := &Adapter{
			Mathpix:        NewMathpixClient(MathpixConfig{}),
			Offline:        fakeOffline{err: ErrOfflineDisabled},
			UseFreeBackend: true,
		}
		assert.Equal(t, "raw text", a.Enrich(context.Background(), " raw text ", page))
	})

	t.Run("offline error returns raw", func(t *testing.T) {
		a := &Adapter{Offline: fakeOffline{err: errors.New("tesseract crashed")}, UseFreeBackend: true}
		assert.Equal(t, "raw", a.Enrich(context.Background(), "raw", page))
	})

	t.Run("empty mathpix result tries offline", func(t *testing.T) {
		s := mathpixServer(t, http.StatusOK, `{}`)
		a := &Adapter{
			Mathpix:        NewMathpixClient(MathpixConfig{APIURL: s.URL, AppID: "a", AppKey: "b"}),
			Offline:        fakeOffline{out: "z"},
			UseFreeBackend: true,
		}
		assert.Equal(t, "raw\n\nz", a.Enrich(context.Background(), "raw", page))
	})
}
