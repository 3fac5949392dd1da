package runner_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/settle/internal/dto"
	"github.com/aretw0/settle/pkg/domain"
	"github.com/aretw0/settle/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eofSignal closes done once the wrapped reader is exhausted.
type eofSignal struct {
	r    io.Reader
	once sync.Once
	done chan struct{}
}

func (e *eofSignal) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if errors.Is(err, io.EOF) {
		e.once.Do(func() { close(e.done) })
	}
	return n, err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func decodeLines(t *testing.T, out string) []dto.ActivationResponse {
	t.Helper()
	var resps []dto.ActivationResponse
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var r dto.ActivationResponse
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r), sc.Text())
		resps = append(resps, r)
	}
	return resps
}

func TestRunner_Stream(t *testing.T) {
	f := newFixture(t)
	input := strings.Join([]string{
		`{"id":"a1","settings":{"conversationKey":"u1","messageField":"text","waitTimeSeconds":"2"},"payload":{"text":"a"}}`,
		`{"id":"b1","settings":{"conversationKey":"u2","messageField":"text","waitTimeSeconds":2},"payload":{"text":"x"}}`,
		`{"id":"a2","settings":{"conversationKey":"u1","messageField":"text","waitTimeSeconds":2},"payload":{"text":"b"}}`,
		`{"id":"blank","settings":{"conversationKey":"u3","messageField":"text"},"payload":{"text":"  "}}`,
		`not json`,
		``,
		`{"id":"bad","settings":{"conversationKey":"u4","messageField":"text","colour":"red"},"payload":{"text":"hi"}}`,
	}, "\n")

	in := &eofSignal{r: strings.NewReader(input), done: make(chan struct{})}
	r := runner.NewRunner(f.engine, runner.WithInterval(time.Second), runner.WithSleep(func(ctx context.Context, d time.Duration) error {
		// Hold polling until every line is buffered so both u1 messages share a window.
		select {
		case <-in.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		f.clock.Advance(d)
		return nil
	}))

	var out syncBuffer
	require.NoError(t, r.Run(context.Background(), in, &out))

	byID := map[string][]dto.ActivationResponse{}
	for _, resp := range decodeLines(t, out.buf.String()) {
		byID[resp.ActivationID] = append(byID[resp.ActivationID], resp)
	}

	// 1. u2: wait, then ready with its single message
	require.Len(t, byID["b1"], 2)
	assert.Equal(t, "wait", byID["b1"][0].Channel)
	assert.Equal(t, "ready", byID["b1"][1].Channel)
	assert.Equal(t, "x", byID["b1"][1].Payload["consolidatedMessage"])

	// 2. u1: one ready with both messages, reported under the first activation
	require.Len(t, byID["a1"], 2)
	assert.Equal(t, "ready", byID["a1"][1].Channel)
	assert.Equal(t, "a b", byID["a1"][1].Payload["consolidatedMessage"])

	// 3. the second u1 message is followed until its own window closes empty
	require.Len(t, byID["a2"], 2)
	assert.Equal(t, "wait", byID["a2"][0].Channel)
	assert.Equal(t, "discarded", byID["a2"][1].Channel)
	assert.Equal(t, string(domain.ReasonExpiredEmpty), byID["a2"][1].Reason)

	// 4. blank message discarded immediately and never polled
	require.Len(t, byID["blank"], 1)
	assert.Equal(t, string(domain.ReasonEmptyPayload), byID["blank"][0].Reason)

	// 5. malformed lines are reported, not fatal
	require.Len(t, byID["line-5"], 1)
	assert.Contains(t, byID["line-5"][0].Error, "decode line 5")
	require.Len(t, byID["bad"], 1)
	assert.Contains(t, byID["bad"][0].Error, "colour")

	assert.Empty(t, f.store.Keys())
}

func TestRunner_LineLimit(t *testing.T) {
	f := newFixture(t)
	line := `{"settings":{"conversationKey":"u1","messageField":"text"},"payload":{"text":"` + strings.Repeat("x", 200) + `"}}`

	r := runner.NewRunner(f.engine, runner.WithMaxLineSize(100), f.advancing())
	var out syncBuffer
	require.NoError(t, r.Run(context.Background(), strings.NewReader(line+"\n"), &out))

	resps := decodeLines(t, out.buf.String())
	require.Len(t, resps, 1)
	assert.Contains(t, resps[0].Error, runner.ErrLineTooLarge.Error())
	assert.Empty(t, f.store.Keys())
}

func TestRunner_InvalidUTF8(t *testing.T) {
	f := newFixture(t)
	r := runner.NewRunner(f.engine, f.advancing())

	var out syncBuffer
	require.NoError(t, r.Run(context.Background(), bytes.NewReader([]byte("{\"payload\":\"\xff\"}\n")), &out))

	resps := decodeLines(t, out.buf.String())
	require.Len(t, resps, 1)
	assert.Equal(t, runner.ErrInvalidUTF8.Error(), resps[0].Error)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("pipe closed") }

func TestRunner_WriteFailureStops(t *testing.T) {
	f := newFixture(t)
	r := runner.NewRunner(f.engine, f.advancing())

	line := `{"settings":{"conversationKey":"u1","messageField":"text"},"payload":{"text":"hi"}}` + "\n"
	err := r.Run(context.Background(), strings.NewReader(line), failingWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe closed")
}

func TestRunner_LargeNumericIDs(t *testing.T) {
	f := newFixture(t)
	r := runner.NewRunner(f.engine, f.advancing())

	line := `{"id":"big","settings":{"conversationKeyField":"chatId","messageField":"text","waitTimeSeconds":2},"payload":{"chatId":9007199254740993,"text":"hi"}}` + "\n"
	var out syncBuffer
	require.NoError(t, r.Run(context.Background(), strings.NewReader(line), &out))

	resps := decodeLines(t, out.buf.String())
	require.Len(t, resps, 2)
	assert.Equal(t, "9007199254740993", resps[0].Key)
	assert.Equal(t, "ready", resps[1].Channel)
	assert.Equal(t, "9007199254740993", resps[1].Key)
	assert.Contains(t, out.buf.String(), `"chatId":9007199254740993`)
}
