package main

import (
	"github.com/meridian-chain/meridian/app/tooling/admin/commands"
)

func main() {
	commands.Execute()
}
