package main

import "github.com/aquasecurity/deprisk/cmd"

func main() {
	cmd.Execute()
}
