package main

import "github.com/nikhilbhutani/whisperapi/internal/cli"

func main() {
	cli.Execute()
}
