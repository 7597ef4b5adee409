package main

import "github.com/tekriderz/sessionkit/cmd/sessionkit/cmd"

func main() {
	cmd.Execute()
}
