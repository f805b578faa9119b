package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/equilix-backend/internal/app"
	"github.com/yungbote/equilix-backend/internal/flow"
	"github.com/yungbote/equilix-backend/internal/schema"
)

type invokeOptions struct {
	input     string
	inputFile string
	model     string
	outAudio  string
}

func newInvokeCmd(root *rootOptions) *cobra.Command {
	opts := &invokeOptions{}
	cmd := &cobra.Command{
		Use:   "invoke <flow>",
		Short: "Run one flow and print its output as JSON",
		Example: `  equilix invoke chat --input '{"message":"I cannot sleep"}'
  equilix invoke textToSpeech --input-file tts.json --out-audio reply.wav`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd.InOrStdin(), opts)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			var invokeOpts []flow.InvokeOption
			if opts.model != "" {
				invokeOpts = append(invokeOpts, flow.WithModel(opts.model))
			}
			res, err := a.Registry.Invoke(cmd.Context(), args[0], input, invokeOpts...)
			if err != nil {
				return err
			}
			if opts.outAudio != "" {
				if err := extractAudio(res.Output, opts.outAudio); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"flow":       res.Flow,
				"model":      res.Model,
				"fallback":   res.Fallback,
				"durationMs": res.Duration.Milliseconds(),
				"output":     res.Output,
			})
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Flow input as a JSON object")
	cmd.Flags().StringVarP(&opts.inputFile, "input-file", "f", "", "File holding the JSON input, or - for stdin")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model id overriding the flow's configured model")
	cmd.Flags().StringVar(&opts.outAudio, "out-audio", "", "Write the audio output to this WAV file")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")
	cmd.MarkFlagsOneRequired("input", "input-file")
	return cmd
}

func readInput(stdin io.Reader, opts *invokeOptions) (map[string]any, error) {
	var raw []byte
	switch {
	case opts.inputFile == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case opts.inputFile != "":
		b, err := os.ReadFile(opts.inputFile)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		raw = b
	default:
		raw = []byte(opts.input)
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

// extractAudio writes the first audio data URI in output to path and puts
// the path in its place so the printed JSON stays readable.
func extractAudio(output map[string]any, path string) error {
	for k, v := range output {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "data:audio/") {
			continue
		}
		d, err := schema.ParseDataURI(s)
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		if err := os.WriteFile(path, d.Data, 0o644); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		output[k] = path
		return nil
	}
	return fmt.Errorf("flow output has no audio to write")
}
