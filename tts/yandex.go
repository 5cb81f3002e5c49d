package tts

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	tts "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/tts/v3"
)

const (
	YandexTTSEndpoint = "tts.api.cloud.yandex.net:443"
)

type YandexConfig struct {
	ApiKey   string
	FolderID string
	Options  SynthesisOptions
}

type YandexTTSClient struct {
	client   tts.SynthesizerClient
	conn     *grpc.ClientConn
	apiKey   string
	folderID string
	options  SynthesisOptions
}

// Ensure YandexTTSClient implements Synthesizer interface
var _ Synthesizer = (*YandexTTSClient)(nil)

func GetDefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		Voice:  "john",
		Speed:  1.0,
		Volume: 0.0,
		Model:  "general",
	}
}

func NewYandexTTSClient(config YandexConfig) (*YandexTTSClient, error) {
	if config.ApiKey == "" {
		return nil, errors.New("yandex tts: api key required")
	}
	options := config.Options
	if options == (SynthesisOptions{}) {
		options = GetDefaultSynthesisOptions()
	}

	conn, err := grpc.NewClient(YandexTTSEndpoint, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS service: %w", err)
	}

	return &YandexTTSClient{
		client:   tts.NewSynthesizerClient(conn),
		conn:     conn,
		apiKey:   config.ApiKey,
		folderID: config.FolderID,
		options:  options,
	}, nil
}

// Synthesize requests a WAV rendering of text and joins the streamed chunks.
func (c *YandexTTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx = metadata.AppendToOutgoingContext(ctx,
		"authorization", "Api-Key "+c.apiKey,
		"x-folder-id", c.folderID,
	)

	stream, err := c.client.UtteranceSynthesis(ctx, buildRequest(text, c.options))
	if err != nil {
		return nil, fmt.Errorf("failed to start synthesis: %w", err)
	}
	return collectAudio(stream)
}

type synthesisStream interface {
	Recv() (*tts.UtteranceSynthesisResponse, error)
}

func collectAudio(stream synthesisStream) ([]byte, error) {
	var buf bytes.Buffer
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to receive audio data: %w", err)
		}
		buf.Write(resp.GetAudioChunk().GetData())
	}
	if buf.Len() == 0 {
		return nil, errors.New("synthesis returned no audio")
	}
	return buf.Bytes(), nil
}

func buildRequest(text string, options SynthesisOptions) *tts.UtteranceSynthesisRequest {
	req := &tts.UtteranceSynthesisRequest{}
	req.SetModel(options.Model)
	req.SetText(text)

	voiceHint := &tts.Hints{}
	voiceHint.SetVoice(options.Voice)

	speedHint := &tts.Hints{}
	speedHint.SetSpeed(options.Speed)

	volumeHint := &tts.Hints{}
	volumeHint.SetVolume(options.Volume)

	req.SetHints([]*tts.Hints{voiceHint, speedHint, volumeHint})

	// WAV keeps the sample rate in the header for the playback decoder.
	containerAudio := &tts.ContainerAudio{}
	containerAudio.SetContainerAudioType(tts.ContainerAudio_WAV)
	audioSpec := &tts.AudioFormatOptions{}
	audioSpec.SetContainerAudio(containerAudio)
	req.SetOutputAudioSpec(audioSpec)

	req.SetLoudnessNormalizationType(tts.UtteranceSynthesisRequest_LUFS)
	return req
}

func (c *YandexTTSClient) Close() error {
	return c.conn.Close()
}
