package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	// HeaderKind and HeaderReason carry Result.Kind and Result.Reason on
	// /api/voice-query/audio responses.
	HeaderKind   = "X-Voxloop-Kind"
	HeaderReason = "X-Voxloop-Reason"
)

// Remote is a Processor that uploads utterances to a voxloop server.
type Remote struct {
	baseURL       string
	maxAudioBytes int
	httpClient    *http.Client
}

var _ Processor = (*Remote)(nil)

// NewRemote returns a Remote for the server at baseURL. timeout bounds the
// whole round trip and should cover all three stages.
func NewRemote(baseURL string, maxAudioBytes int, timeout time.Duration) (*Remote, error) {
	if baseURL == "" {
		return nil, errors.New("remote pipeline: base url must not be empty")
	}
	if maxAudioBytes <= 0 {
		maxAudioBytes = GetDefaultConfig().MaxAudioBytes
	}
	if timeout <= 0 {
		d := GetDefaultConfig()
		timeout = d.TranscribeTimeout + d.AnswerTimeout + d.SynthesizeTimeout
	}
	return &Remote{
		baseURL:       strings.TrimRight(baseURL, "/"),
		maxAudioBytes: maxAudioBytes,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

func (r *Remote) Process(ctx context.Context, wav []byte) Result {
	if len(wav) == 0 || len(wav) > r.maxAudioBytes {
		return Result{
			Kind:   Fallback,
			Reason: InvalidAudio,
			Err:    fmt.Errorf("%w: %d bytes", ErrInvalidAudio, len(wav)),
		}
	}

	audio, header, err := r.upload(ctx, wav)
	if err != nil {
		return Result{Kind: Failed, Reason: Transport, Err: fmt.Errorf("%w: %w", ErrTransport, err)}
	}

	res := Result{Kind: Answered, Audio: audio}
	if k, ok := ParseKind(header.Get(HeaderKind)); ok {
		res.Kind = k
	}
	if reason, ok := ParseReason(header.Get(HeaderReason)); ok {
		res.Reason = reason
	}
	return res
}

func (r *Remote) upload(ctx context.Context, wav []byte) ([]byte, http.Header, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		return nil, nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/voice-query/audio", &body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, nil, fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}
	if len(audio) == 0 {
		return nil, nil, errors.New("empty response body")
	}
	return audio, resp.Header, nil
}
