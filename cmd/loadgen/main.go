package main

import (
	"log"

	tool "github.com/sandeepkv93/storefront-inventory-service/internal/tools/loadgen"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
