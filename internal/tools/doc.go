// Package tools holds the built-in pipeline tools: source ingestion, project
// kind detection, and the build probe. Each one implements engine.Tool and is
// registered with the engine by the CLI.
package tools
