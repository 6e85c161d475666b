// Command protodyn converts between binary protobuf messages and JSON, YAML
// or msgpack documents, using a schema loaded at runtime from descriptor
// sets, .proto sources or a server that supports gRPC reflection.
//
// Examples:
//
//	protodyn encode -d schema.protoset --type foo.Bar < bar.json > bar.bin
//	protodyn decode -d schema.protoset --type foo.Bar --format yaml bar.bin
//	protodyn create --proto foo.proto -I ./protos --type foo.Bar
//	protodyn types --reflect-addr localhost:8080
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}
