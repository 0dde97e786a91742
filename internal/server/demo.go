package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/morezero/flow-functions/pkg/adapter"
	"github.com/morezero/flow-functions/pkg/callable"
	"github.com/morezero/flow-functions/pkg/flow"
)

// JokeInput is the input of the demo flows.
type JokeInput struct {
	Subject string `json:"subject"`
}

// JokeOutput is the output of the demo flows.
type JokeOutput struct {
	Joke string `json:"joke"`
}

func tellJoke(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", callable.InvalidArgument("subject is required")
	}
	return fmt.Sprintf("Why did the %s cross the road? To get to the other side.", subject), nil
}

// JokeFlow answers with a joke in one piece.
func JokeFlow() *flow.Func {
	return flow.Define("jokeFlow", func(_ context.Context, in JokeInput, _ map[string]interface{}) (*JokeOutput, error) {
		joke, err := tellJoke(in.Subject)
		if err != nil {
			return nil, err
		}
		return &JokeOutput{Joke: joke}, nil
	})
}

// JokeStreamFlow streams a joke word by word before returning it whole.
func JokeStreamFlow() *flow.Func {
	return flow.DefineStreaming("jokeStreamFlow", func(ctx context.Context, in JokeInput, _ map[string]interface{}, send func(string) error) (*JokeOutput, error) {
		joke, err := tellJoke(in.Subject)
		if err != nil {
			return nil, err
		}
		for _, word := range strings.Fields(joke) {
			if err := send(word); err != nil {
				return nil, err
			}
		}
		return &JokeOutput{Joke: joke}, nil
	})
}

// demoAdapters exposes the demo flows anonymously.
func demoAdapters(opts adapter.Options) ([]*adapter.Adapter, error) {
	joke, err := adapter.New(JokeFlow(), opts)
	if err != nil {
		return nil, err
	}
	streamOpts := opts
	streamOpts.Streaming = true
	stream, err := adapter.New(JokeStreamFlow(), streamOpts)
	if err != nil {
		return nil, err
	}
	return []*adapter.Adapter{joke, stream}, nil
}
