// Package main provides the entry point for the arena CLI.
package main

import "yqhp/arena/cmd"

func main() {
	cmd.Execute()
}
