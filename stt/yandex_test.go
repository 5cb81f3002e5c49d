package stt

import (
	"errors"
	"io"
	"testing"

	"github.com/d1nch8g/voxloop/audio"
	speechkit "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"
)

type fakeStream struct {
	responses []*speechkit.StreamingResponse
	err       error
}

func (f *fakeStream) Recv() (*speechkit.StreamingResponse, error) {
	if len(f.responses) == 0 {
		if f.err != nil {
			return nil, f.err
		}
		return nil, io.EOF
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func final(texts ...string) *speechkit.StreamingResponse {
	var alts []*speechkit.Alternative
	for _, t := range texts {
		alts = append(alts, &speechkit.Alternative{Text: t})
	}
	return &speechkit.StreamingResponse{
		Event: &speechkit.StreamingResponse_Final{
			Final: &speechkit.AlternativeUpdate{Alternatives: alts},
		},
	}
}

func partial(text string) *speechkit.StreamingResponse {
	return &speechkit.StreamingResponse{
		Event: &speechkit.StreamingResponse_Partial{
			Partial: &speechkit.AlternativeUpdate{
				Alternatives: []*speechkit.Alternative{{Text: text}},
			},
		},
	}
}

func TestCollectFinals(t *testing.T) {
	stream := &fakeStream{responses: []*speechkit.StreamingResponse{
		partial("hel"),
		final("hello there", "hello their"),
		final(""),
		partial("how"),
		final("how are you"),
	}}
	text, err := collectFinals(stream)
	if err != nil {
		t.Fatalf("collectFinals: %v", err)
	}
	if text != "hello there how are you" {
		t.Fatalf("text = %q", text)
	}
}

func TestCollectFinals_StreamError(t *testing.T) {
	boom := errors.New("unavailable")
	stream := &fakeStream{responses: []*speechkit.StreamingResponse{final("x")}, err: boom}
	if _, err := collectFinals(stream); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestYandexSessionOptions(t *testing.T) {
	c := &YandexSTTClient{config: YandexConfig{IamToken: "t", FolderID: "f", Language: "ru-RU"}}
	req := c.sessionOptions(audio.PCM{SampleRate: 16000, Channels: 1})

	model := req.GetSessionOptions().GetRecognitionModel()
	raw := model.GetAudioFormat().GetRawAudio()
	if raw.GetSampleRateHertz() != 16000 || raw.GetAudioChannelCount() != 1 {
		t.Fatalf("raw audio = %v", raw)
	}
	if raw.GetAudioEncoding() != speechkit.RawAudio_LINEAR16_PCM {
		t.Fatalf("encoding = %v", raw.GetAudioEncoding())
	}
	if langs := model.GetLanguageRestriction().GetLanguageCode(); len(langs) != 1 || langs[0] != "ru-RU" {
		t.Fatalf("languages = %v", langs)
	}

	md := c.authMetadata()
	if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer t" {
		t.Fatalf("authorization = %v", got)
	}
	c.config.ApiKey = "k"
	if got := c.authMetadata().Get("authorization"); got[0] != "Api-Key k" {
		t.Fatalf("authorization = %v", got)
	}
}
