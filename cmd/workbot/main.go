package main

import "github.com/nirmalnpatel111/new-discord-bot/cmd/workbot/cmd"

func main() {
	cmd.Execute()
}
