package stt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	"github.com/d1nch8g/voxloop/audio"
	speechkit "github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"
)

const (
	YandexSTTEndpoint = "stt.api.cloud.yandex.net:443"

	// chunkSamples is the amount of audio sent per streaming request.
	chunkSamples = 4096
)

type YandexConfig struct {
	ApiKey   string
	IamToken string
	FolderID string
	Language string
}

type YandexSTTClient struct {
	client speechkit.RecognizerClient
	conn   *grpc.ClientConn
	config YandexConfig
}

var _ Transcriber = (*YandexSTTClient)(nil)

func NewYandexSTTClient(config YandexConfig) (*YandexSTTClient, error) {
	if config.ApiKey == "" && config.IamToken == "" {
		return nil, errors.New("yandex stt: api key or iam token required")
	}
	if config.Language == "" {
		config.Language = "en-US"
	}

	conn, err := grpc.NewClient(YandexSTTEndpoint, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Yandex STT: %w", err)
	}

	return &YandexSTTClient{
		client: speechkit.NewRecognizerClient(conn),
		conn:   conn,
		config: config,
	}, nil
}

func (s *YandexSTTClient) Close() error {
	return s.conn.Close()
}

// Transcribe streams the utterance in one session and joins the final
// results.
func (s *YandexSTTClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	pcm, err := audio.Decode(wav)
	if err != nil || len(pcm.Samples) == 0 {
		return "", nil
	}

	ctx = metadata.NewOutgoingContext(ctx, s.authMetadata())

	stream, err := s.client.RecognizeStreaming(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create streaming client: %w", err)
	}

	if err := stream.Send(s.sessionOptions(pcm)); err != nil {
		return "", fmt.Errorf("failed to send session options: %w", err)
	}

	step := chunkSamples * pcm.Channels
	for off := 0; off < len(pcm.Samples); off += step {
		end := min(off+step, len(pcm.Samples))
		chunk := &speechkit.StreamingRequest{
			Event: &speechkit.StreamingRequest_Chunk{
				Chunk: &speechkit.AudioChunk{Data: audio.SamplesToBytes(pcm.Samples[off:end])},
			},
		}
		if err := stream.Send(chunk); err != nil {
			return "", fmt.Errorf("failed to send audio chunk: %w", err)
		}
	}

	eou := &speechkit.StreamingRequest{
		Event: &speechkit.StreamingRequest_Eou{Eou: &speechkit.Eou{}},
	}
	if err := stream.Send(eou); err != nil {
		return "", fmt.Errorf("failed to send end of utterance: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close stream: %w", err)
	}

	return collectFinals(stream)
}

func (s *YandexSTTClient) authMetadata() metadata.MD {
	auth := "Bearer " + s.config.IamToken
	if s.config.ApiKey != "" {
		auth = "Api-Key " + s.config.ApiKey
	}
	return metadata.Pairs(
		"authorization", auth,
		"x-folder-id", s.config.FolderID,
	)
}

func (s *YandexSTTClient) sessionOptions(pcm audio.PCM) *speechkit.StreamingRequest {
	return &speechkit.StreamingRequest{
		Event: &speechkit.StreamingRequest_SessionOptions{
			SessionOptions: &speechkit.StreamingOptions{
				RecognitionModel: &speechkit.RecognitionModelOptions{
					AudioFormat: &speechkit.AudioFormatOptions{
						AudioFormat: &speechkit.AudioFormatOptions_RawAudio{
							RawAudio: &speechkit.RawAudio{
								AudioEncoding:     speechkit.RawAudio_LINEAR16_PCM,
								SampleRateHertz:   int64(pcm.SampleRate),
								AudioChannelCount: int64(pcm.Channels),
							},
						},
					},
					TextNormalization: &speechkit.TextNormalizationOptions{
						TextNormalization: speechkit.TextNormalizationOptions_TEXT_NORMALIZATION_ENABLED,
					},
					LanguageRestriction: &speechkit.LanguageRestrictionOptions{
						RestrictionType: speechkit.LanguageRestrictionOptions_WHITELIST,
						LanguageCode:    []string{s.config.Language},
					},
					AudioProcessingType: speechkit.RecognitionModelOptions_REAL_TIME,
				},
			},
		},
	}
}

type responseStream interface {
	Recv() (*speechkit.StreamingResponse, error)
}

// collectFinals reads the stream to the end, keeping the top alternative of
// every final result.
func collectFinals(stream responseStream) (string, error) {
	var parts []string
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to receive response: %w", err)
		}

		alternatives := resp.GetFinal().GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(alternatives[0].GetText()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
