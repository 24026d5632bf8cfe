// Package agent is the optional chat assistant. A facilitator answers the user with the
// help of a Trader, who searches the web, and an Accountant, who reads the portfolio.
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Agent is the AI assistant that handles the chat session.
type Agent struct {
	w           io.Writer
	r           *bufio.Reader
	Facilitator *Expert
	Experts     []*Expert
	Cache       *Cache // optional
	Usage       *Usage
	// Print writes an answer. Defaults to plain text.
	Print func(w io.Writer, markdown string)
	log   zerolog.Logger
}

// New creates a new Agent reading questions from r and writing answers to w.
func New(w io.Writer, r io.Reader, model string, log zerolog.Logger, experts ...*Expert) *Agent {
	a := &Agent{
		w:           w,
		r:           bufio.NewReader(r),
		Experts:     experts,
		Facilitator: newFacilitator(model, experts...),
		Usage:       new(Usage),
		Print:       func(w io.Writer, md string) { fmt.Fprintln(w, md) },
		log:         log,
	}
	for _, e := range append([]*Expert{a.Facilitator}, experts...) {
		e.usage = a.Usage
		e.log = log
	}
	return a
}

// Start creates the chats of every expert.
func (a *Agent) Start(ctx context.Context, client *genai.Client) error {
	for _, e := range a.Experts {
		if err := e.Start(ctx, client); err != nil {
			return err
		}
	}
	return a.Facilitator.Start(ctx, client)
}

const prompt = "assist> "

// Run starts the interactive REPL session for the agent. The prompts are asked first, as
// if typed by the user. Chats are started on the first question the cache cannot answer.
func (a *Agent) Run(ctx context.Context, client *genai.Client, prompts ...string) error {
	fmt.Fprintln(a.w, "Welcome to yspy assist. Type 'usage' for the tokens spent, 'bye' to exit.")

	// REPL loop
	for {
		// Print the prompt
		fmt.Fprint(a.w, prompt)
		var input string

		// Flush prompts from the list and then ask for the user.
		if len(prompts) > 0 {
			input, prompts = prompts[0], prompts[1:]
			input = strings.TrimSpace(input)
			if input == "" {
				continue
			}
			fmt.Fprintln(a.w, input)
		} else {
			var err error
			input, err = a.r.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return nil // Clean exit on Ctrl+D
				}
				return err
			}
			input = strings.TrimSpace(input)
		}

		switch input {
		case "":
			continue
		case "bye":
			return nil
		case "usage":
			fmt.Fprintln(a.w, a.Usage.Stats())
			if a.Cache != nil {
				s := a.Cache.Stats()
				fmt.Fprintf(a.w, "cache: %d active entries, %d expired, %d tokens saved\n", s.Active, s.Expired, s.TokensSaved)
			}
			continue
		}

		answer, err := a.answer(ctx, client, input)
		if err != nil {
			return err
		}
		a.Print(a.w, answer)
	}
}

// answer returns the cached answer to input or asks the facilitator.
func (a *Agent) answer(ctx context.Context, client *genai.Client, input string) (string, error) {
	model := a.Facilitator.ModelName
	if cached, ok := a.Cache.Get(model, input); ok {
		a.Usage.hit()
		a.log.Debug().Str("question", input).Msg("answer from cache")
		return cached, nil
	}
	if a.Facilitator.chat == nil {
		if err := a.Start(ctx, client); err != nil {
			return "", err
		}
	}
	before := a.Usage.Stats().TotalTokens
	content, err := a.Facilitator.Ask(ctx, &genai.Part{Text: input})
	if err != nil {
		return "", err
	}
	answer := text(content)
	a.Cache.Set(model, input, answer, a.Usage.Stats().TotalTokens-before)
	return answer, nil
}
