package main

import "github.com/velvetfox/velvetfox/cmd"

func main() {
	cmd.Execute()
}
