package main

import (
	"os"

	"github.com/quickpic/client/internal/service/relay"
)

func main() {
	addr := ":8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	s := relay.New()
	if err := s.Run(addr); err != nil {
		panic(err)
	}
}
