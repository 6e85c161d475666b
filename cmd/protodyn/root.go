package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jhump/protodyn/protovalue"
)

// flags holds the values of the persistent flags shared by all commands.
type flags struct {
	descriptorSets []string
	protoFiles     []string
	importPaths    []string
	reflectAddr    string

	logLevel    string
	format      string
	camelCase   bool
	enumNumbers bool
	tolerant    bool
	maxDepth    int
	parallelism int
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&f.descriptorSets, "descriptor-set", "d", nil,
		"File containing a serialized FileDescriptorSet (may be repeated)")
	fs.StringArrayVar(&f.protoFiles, "proto", nil,
		"Proto source file to compile, relative to an import path (may be repeated)")
	fs.StringArrayVarP(&f.importPaths, "import-path", "I", nil,
		"Directory in which to search for proto sources and their imports (may be repeated)")
	fs.StringVar(&f.reflectAddr, "reflect-addr", "",
		"Address of a gRPC server that supports reflection, used instead of local schemas")
	fs.StringVar(&f.logLevel, "log-level", defaultLogLevel,
		"Log level: trace, debug, info, warn, error or off")
	fs.StringVar(&f.format, "format", formatJSON,
		"Format of dynamic values: json, yaml or msgpack")
	fs.BoolVar(&f.camelCase, "camel-case", false,
		"Use lowerCamelCase JSON names instead of proto field names when decoding")
	fs.BoolVar(&f.enumNumbers, "enum-numbers", false,
		"Decode enum values as numbers instead of names")
	fs.BoolVar(&f.tolerant, "tolerant", false,
		"Skip optional fields whose values cannot be converted when encoding, instead of failing")
	fs.IntVar(&f.maxDepth, "max-depth", protovalue.DefaultMaxDepth,
		"Maximum nesting depth of messages")
	fs.IntVar(&f.parallelism, "parallelism", runtime.GOMAXPROCS(0),
		"Maximum number of inputs converted concurrently")
}

func (f *flags) options() protovalue.Options {
	return protovalue.Options{
		UseCamelCase:           f.camelCase,
		UseEnumNumbers:         f.enumNumbers,
		TolerateOptionalErrors: f.tolerant,
		MaxDepth:               f.maxDepth,
	}
}

func (f *flags) validate() error {
	if !isFormat(f.format) {
		return fmt.Errorf("invalid format %q: must be one of %s", f.format, formatNames())
	}
	if f.parallelism < 1 {
		return errors.New("parallelism must be at least 1")
	}
	if f.maxDepth < 1 {
		return errors.New("max-depth must be at least 1")
	}
	if f.reflectAddr != "" && (len(f.descriptorSets) > 0 || len(f.protoFiles) > 0) {
		return errors.New("--reflect-addr cannot be combined with --descriptor-set or --proto")
	}
	if f.reflectAddr == "" && len(f.descriptorSets) == 0 && len(f.protoFiles) == 0 {
		return errors.New("no schema given: use --descriptor-set, --proto or --reflect-addr")
	}
	return nil
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags  flags
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger hclog.Logger
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	cmd := &cobra.Command{
		Use:   "protodyn",
		Short: "Convert protobuf messages to and from JSON, YAML and msgpack",
		Long: `protodyn converts between binary protobuf messages and dynamic documents
(JSON, YAML or msgpack) using a schema that is loaded at runtime.

The schema comes from serialized FileDescriptorSets (--descriptor-set), from
.proto sources that are compiled on the fly (--proto and --import-path), or
from a running server that supports gRPC reflection (--reflect-addr).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(a.flags.logLevel, a.stderr)
			if err != nil {
				return err
			}
			a.logger = logger
			return a.flags.validate()
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	a.flags.register(cmd.PersistentFlags())

	cmd.AddCommand(
		newEncodeCmd(a),
		newDecodeCmd(a),
		newCreateCmd(a),
		newTypesCmd(a),
	)
	return cmd
}

func addTypeFlag(cmd *cobra.Command, typeName *string) {
	cmd.Flags().StringVarP(typeName, "type", "t", "", "Fully-qualified name of the message type")
	_ = cmd.MarkFlagRequired("type")
}
