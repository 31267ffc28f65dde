package main

import "github.com/lettermill/lettermill/internal/app"

func main() {
	app.Execute()
}
