package main

import "github.com/topcoder-platform/challenge-api-v6-sub000/cmd"

func main() {
	cmd.Execute()
}
