package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/RhineAGI/rhine/pkg/chat"
	"github.com/RhineAGI/rhine/pkg/config"
	"github.com/RhineAGI/rhine/pkg/conversation"
	"github.com/RhineAGI/rhine/pkg/events"
	"github.com/RhineAGI/rhine/pkg/tools"
)

var (
	configFile      string
	profileName     string
	characterPrompt string
	speaker         string
	useStream       bool
	withTools       bool
	logLevel        string
)

var rootCmd = &cobra.Command{
	Use:   "rhine [prompt]",
	Short: "Chat against a configured model endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "rhine.yaml", "settings file")
	rootCmd.Flags().StringVar(&profileName, "profile", "", "api profile name (default: first chat-capable profile)")
	rootCmd.Flags().StringVar(&characterPrompt, "character", "You are a helpful assistant.", "character prompt")
	rootCmd.Flags().StringVar(&speaker, "speaker", "", "speak as this named character instead of the assistant")
	rootCmd.Flags().BoolVar(&useStream, "stream", false, "stream the answer")
	rootCmd.Flags().BoolVar(&withTools, "tools", false, "enable tool calling with the demo tools")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
}

func run(ctx context.Context, userPrompt string) error {
	settings, err := config.Load(configFile)
	if err != nil {
		return err
	}

	var sc *chat.SingleChat
	if profileName != "" {
		sc, err = chat.NewSingleChat(settings, profileName, characterPrompt, useStream)
	} else {
		sc, err = chat.NewSingleChatWithCapability(settings, config.CapabilityChat, characterPrompt, useStream)
	}
	if err != nil {
		return err
	}

	if speaker != "" {
		chat.WithBaseOptions(chat.WithSpeaker(conversation.CharacterRole(speaker)))(sc)
	}

	if useStream {
		if err := subscribeStreamPrinter(ctx, sc); err != nil {
			return err
		}
	}

	if withTools {
		if err := registerDemoTools(); err != nil {
			return err
		}
		if err := sc.SetToolsFromRegistry(); err != nil {
			return err
		}

		cleanAnswer, results, err := sc.GetToolAnswer(ctx, userPrompt)
		if err != nil {
			return err
		}

		fmt.Println(strings.TrimSpace(cleanAnswer))
		for i, result := range results {
			fmt.Printf("\n[tool result %d]\n%s\n", i, result)
		}
		return nil
	}

	answer, err := sc.GetAnswer(ctx, userPrompt)
	if err != nil {
		return err
	}

	if !useStream {
		fmt.Println(answer)
	} else {
		// partials already printed by the subscriber
		fmt.Println()
	}

	log.Debug().Int("usage", sc.Base.Usage).Msg("total token usage")

	return nil
}

// subscribeStreamPrinter wires a gochannel subscriber to the session's event
// publisher and prints content deltas as they arrive.
func subscribeStreamPrinter(ctx context.Context, sc *chat.SingleChat) error {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	messages, err := pubSub.Subscribe(ctx, "chat")
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to chat events")
	}

	go func() {
		for msg := range messages {
			ev, err := events.NewEventFromJSON(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Msg("failed to decode chat event")
				msg.Ack()
				continue
			}
			if ev.Type == events.EventTypePartialCompletion {
				fmt.Print(ev.Delta)
			}
			msg.Ack()
		}
	}()

	sc.Base.Publisher().SubscribePublisher("chat", pubSub)

	return nil
}

type weatherRequest struct {
	City string `json:"city" jsonschema:"description=City to look up"`
	Unit string `json:"unit,omitempty" jsonschema:"description=celsius or fahrenheit"`
}

type timeRequest struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name"`
}

func registerDemoTools() error {
	err := tools.Register("get_weather", "Look up the current weather for a city",
		func(req weatherRequest) (map[string]interface{}, error) {
			unit := req.Unit
			if unit == "" {
				unit = "celsius"
			}
			return map[string]interface{}{
				"city":        req.City,
				"unit":        unit,
				"temperature": 21,
				"conditions":  "partly cloudy",
			}, nil
		})
	if err != nil {
		return err
	}

	return tools.Register("get_current_time", "Get the current time",
		func(req timeRequest) (string, error) {
			loc := time.Local
			if req.Timezone != "" {
				var err error
				loc, err = time.LoadLocation(req.Timezone)
				if err != nil {
					return "", errors.Wrapf(err, "unknown timezone %s", req.Timezone)
				}
			}
			return time.Now().In(loc).Format(time.RFC1123), nil
		})
}

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cobra.OnInitialize(func() {
		if level, err := zerolog.ParseLevel(logLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
