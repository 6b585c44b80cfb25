package main

import "github.com/yarlson/pilot/cmd"

func main() {
	cmd.Execute()
}
