// Command settle runs the message consolidation engine: as an HTTP service,
// an MCP server, an NDJSON stream processor, or one activation at a time.
package main

func main() {
	Execute()
}
