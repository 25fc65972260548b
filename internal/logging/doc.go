// Package logging sets up structured JSON logging to a size-rotated file
// under the data directory, optionally tee'd to stderr.
//
// The MCP server speaks JSON-RPC on stdout, so `amanrag serve` disables the
// stderr copy and logs to the file only.
package logging
