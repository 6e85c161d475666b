package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protodyn/protovalue"
)

func newEncodeCmd(a *app) *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "encode [file...]",
		Short: "Encode documents as binary protobuf messages",
		Long: `Encode parses each input document in the selected format and writes it as
a binary message of the given type. With no files, the document is read from
stdin and the message is written to stdout. With several files, each message
is written next to its input, with the extension replaced by ".bin".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convertAll(cmd.Context(), args, ".bin", func(t transcoder, in []byte, input string) ([]byte, error) {
				var warnings protovalue.WarningFields
				out, err := t.encode(in, typeName, a.flags.options(), &warnings)
				if err != nil {
					return nil, err
				}
				for _, w := range warnings.List() {
					a.logger.Warn("skipped optional field", "input", input, "field", w)
				}
				return out, nil
			})
		},
	}
	addTypeFlag(cmd, &typeName)
	return cmd
}

func newDecodeCmd(a *app) *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "decode [file...]",
		Short: "Decode binary protobuf messages into documents",
		Long: `Decode parses each input as a binary message of the given type and writes
it as a document in the selected format. With no files, the message is read
from stdin and the document is written to stdout. With several files, each
document is written next to its input, with the extension replaced by one
for the format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convertAll(cmd.Context(), args, extension(a.flags.format), func(t transcoder, in []byte, _ string) ([]byte, error) {
				return t.decode(in, typeName, a.flags.options())
			})
		},
	}
	addTypeFlag(cmd, &typeName)
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Print the default instance of a message type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, release, err := a.loadPool(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			t, err := newTranscoder(a.flags.format, p, a.logger)
			if err != nil {
				return err
			}
			out, err := t.create(typeName, a.flags.options())
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}
	addTypeFlag(cmd, &typeName)
	return cmd
}

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the message types in the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, release, err := a.loadPool(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			if err := a.prefetch(p); err != nil {
				return err
			}
			var sb strings.Builder
			p.RangeMessages(func(md protoreflect.MessageDescriptor) bool {
				sb.WriteString(string(md.FullName()))
				sb.WriteByte('\n')
				return true
			})
			_, err = io.WriteString(a.stdout, sb.String())
			return err
		},
	}
}

type convertFunc func(t transcoder, in []byte, input string) ([]byte, error)

// convertAll applies fn to each input file, or to stdin when there are none.
// Inputs are converted concurrently. The output for a single input goes to
// stdout; otherwise each output is written to a file named after its input
// with the given extension.
func (a *app) convertAll(ctx context.Context, inputs []string, ext string, fn convertFunc) error {
	p, release, err := a.loadPool(ctx)
	if err != nil {
		return err
	}
	defer release()
	t, err := newTranscoder(a.flags.format, p, a.logger)
	if err != nil {
		return err
	}

	if len(inputs) == 0 {
		in, err := io.ReadAll(a.stdin)
		if err != nil {
			return err
		}
		out, err := fn(t, in, "<stdin>")
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(out)
		return err
	}

	outputs := make([][]byte, len(inputs))
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(a.flags.parallelism)
	for i, input := range inputs {
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			in, err := os.ReadFile(input)
			if err != nil {
				return err
			}
			out, err := fn(t, in, input)
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
			a.logger.Debug("converted", "input", input, "bytes", len(out))
			if len(inputs) > 1 {
				return os.WriteFile(outputPath(input, ext), out, 0644)
			}
			outputs[i] = out
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	if len(inputs) == 1 {
		_, err := a.stdout.Write(outputs[0])
		return err
	}
	return nil
}

func outputPath(input, ext string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ext
}
